package redis

import (
	"context"
	"fmt"

	"github.com/playbridge/server/internal/repository/session"
)

func (r repo) getSnapshotKey(src string) string {
	return "source:" + src + ":snapshot"
}

func (r repo) SetSnapshot(ctx context.Context, params *session.SetSnapshotParams) error {
	pipe := r.rc.TxPipeline()

	snapshot := session.Snapshot{
		Src:          params.Src,
		Service:      params.Service,
		CurrentTime:  params.CurrentTime,
		Duration:     params.Duration,
		IsPlaying:    params.IsPlaying,
		PlaybackRate: params.PlaybackRate,
		UpdatedAt:    params.UpdatedAt,
	}
	snapshotKey := r.getSnapshotKey(params.Src)
	pipe.HSet(ctx, snapshotKey, snapshot)
	pipe.Expire(ctx, snapshotKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}

	return nil
}

func (r repo) GetSnapshot(ctx context.Context, src string) (session.Snapshot, error) {
	snapshotKey := r.getSnapshotKey(src)
	res, err := r.rc.Exists(ctx, snapshotKey).Result()
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if res == 0 {
		return session.Snapshot{}, session.ErrSnapshotNotFound
	}

	var snapshot session.Snapshot
	if err := r.rc.HGetAll(ctx, snapshotKey).Scan(&snapshot); err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}

	r.rc.Expire(ctx, snapshotKey, r.expireDuration)

	return snapshot, nil
}

func (r repo) RemoveSnapshot(ctx context.Context, src string) error {
	res, err := r.rc.Del(ctx, r.getSnapshotKey(src)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}

	if res == 0 {
		return session.ErrSnapshotNotFound
	}

	return nil
}
