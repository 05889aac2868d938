package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/playbridge/server/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	defaultVolume = configVar[float64]{
		envKey:       "PLAYER_DEFAULT_VOLUME",
		flagKey:      "default-volume",
		defaultValue: 1,
	}
	defaultMuted = configVar[bool]{
		envKey:       "PLAYER_DEFAULT_MUTED",
		flagKey:      "default-muted",
		defaultValue: false,
	}
	volumeAPIReliable = configVar[bool]{
		envKey:       "PLAYER_VOLUME_API_RELIABLE",
		flagKey:      "volume-api-reliable",
		defaultValue: true,
	}
	youtubeNoCookie = configVar[bool]{
		envKey:       "PLAYER_YOUTUBE_NOCOOKIE",
		flagKey:      "youtube-nocookie",
		defaultValue: false,
	}
	bunnyHosts = configVar[string]{
		envKey:       "PLAYER_BUNNY_HOSTS",
		flagKey:      "bunny-hosts",
		defaultValue: "",
	}
	loaderTimeoutSec = configVar[int]{
		envKey:       "PLAYER_LOADER_TIMEOUT_SEC",
		flagKey:      "loader-timeout-sec",
		defaultValue: 10,
	}
	resumeThreshold = configVar[float64]{
		envKey:       "PLAYER_RESUME_THRESHOLD",
		flagKey:      "resume-threshold",
		defaultValue: 5,
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.Float64(defaultVolume.flagKey, defaultVolume.defaultValue, "Volume applied when a player becomes ready")
	pflag.Bool(defaultMuted.flagKey, defaultMuted.defaultValue, "Mute applied when a player becomes ready")
	pflag.Bool(volumeAPIReliable.flagKey, volumeAPIReliable.defaultValue, "Whether programmatic volume sticks on the target platform")
	pflag.Bool(youtubeNoCookie.flagKey, youtubeNoCookie.defaultValue, "Serve YouTube embeds from the cookieless domain")
	pflag.String(bunnyHosts.flagKey, bunnyHosts.defaultValue, "Comma-separated extra hostnames serving Bunny embeds")
	pflag.Int(loaderTimeoutSec.flagKey, loaderTimeoutSec.defaultValue, "Vendor script load timeout in seconds")
	pflag.Float64(resumeThreshold.flagKey, resumeThreshold.defaultValue, "Minimum saved position in seconds worth resuming from")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(port.flagKey, port.envKey)
	viper.BindEnv(host.flagKey, host.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(defaultVolume.flagKey, defaultVolume.envKey)
	viper.BindEnv(defaultMuted.flagKey, defaultMuted.envKey)
	viper.BindEnv(volumeAPIReliable.flagKey, volumeAPIReliable.envKey)
	viper.BindEnv(youtubeNoCookie.flagKey, youtubeNoCookie.envKey)
	viper.BindEnv(bunnyHosts.flagKey, bunnyHosts.envKey)
	viper.BindEnv(loaderTimeoutSec.flagKey, loaderTimeoutSec.envKey)
	viper.BindEnv(resumeThreshold.flagKey, resumeThreshold.envKey)
	viper.BindEnv(redisPort.flagKey, redisPort.envKey)
	viper.BindEnv(redisHost.flagKey, redisHost.envKey)
	viper.BindEnv(redisPassword.flagKey, redisPassword.envKey)

	viper.SetDefault(port.flagKey, port.defaultValue)
	viper.SetDefault(host.flagKey, host.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(defaultVolume.flagKey, defaultVolume.defaultValue)
	viper.SetDefault(defaultMuted.flagKey, defaultMuted.defaultValue)
	viper.SetDefault(volumeAPIReliable.flagKey, volumeAPIReliable.defaultValue)
	viper.SetDefault(youtubeNoCookie.flagKey, youtubeNoCookie.defaultValue)
	viper.SetDefault(bunnyHosts.flagKey, bunnyHosts.defaultValue)
	viper.SetDefault(loaderTimeoutSec.flagKey, loaderTimeoutSec.defaultValue)
	viper.SetDefault(resumeThreshold.flagKey, resumeThreshold.defaultValue)
	viper.SetDefault(redisPort.flagKey, redisPort.defaultValue)
	viper.SetDefault(redisHost.flagKey, redisHost.defaultValue)
	viper.SetDefault(redisPassword.flagKey, redisPassword.defaultValue)

	config := &app.AppConfig{
		Host:              viper.GetString(host.flagKey),
		Port:              viper.GetInt(port.flagKey),
		LogLevel:          viper.GetString(logLevel.flagKey),
		DefaultVolume:     viper.GetFloat64(defaultVolume.flagKey),
		DefaultMuted:      viper.GetBool(defaultMuted.flagKey),
		VolumeAPIReliable: viper.GetBool(volumeAPIReliable.flagKey),
		YouTubeNoCookie:   viper.GetBool(youtubeNoCookie.flagKey),
		BunnyHosts:        viper.GetString(bunnyHosts.flagKey),
		LoaderTimeoutSec:  viper.GetInt(loaderTimeoutSec.flagKey),
		ResumeThreshold:   viper.GetFloat64(resumeThreshold.flagKey),
		RedisPort:         viper.GetInt(redisPort.flagKey),
		RedisHost:         viper.GetString(redisHost.flagKey),
		RedisPassword:     viper.GetString(redisPassword.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
