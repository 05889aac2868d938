package domain

// Service identifies which vendor backend a source belongs to.
type Service string

const (
	ServiceNative        Service = "native"
	ServiceYouTube       Service = "youtube"
	ServiceYouTubeShorts Service = "youtube-shorts"
	ServiceVimeo         Service = "vimeo"
	ServiceBunny         Service = "bunny"
	ServiceGDrive        Service = "gdrive"
	ServiceOther         Service = "other"
)

// VideoDescriptor is the classified representation of a source. It is
// immutable for the lifetime of a mount; a new descriptor means a new mount.
type VideoDescriptor struct {
	Service   Service `json:"service"`
	Id        string  `json:"id"`
	Src       string  `json:"src"`
	Thumbnail string  `json:"thumbnail,omitempty"`
}
