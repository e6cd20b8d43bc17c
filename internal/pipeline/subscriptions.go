package pipeline

import (
	"context"
	"log/slog"
	"time"

	"thirdcoast.systems/streamvault/internal/model"
	"thirdcoast.systems/streamvault/internal/notify"
)

// downloadStarter is the slice of Downloader the poller needs.
type downloadStarter interface {
	Start(ctx context.Context, url, resolution string) (*model.DownloadJob, error)
}

// Poller periodically checks enabled subscriptions for liveness and starts a
// download when a watched source goes live.
type Poller struct {
	store   Store
	fetcher Fetcher
	starter downloadStarter
	hub     Publisher

	tick time.Duration
	now  func() time.Time
}

func NewPoller(st Store, fetcher Fetcher, starter downloadStarter, hub Publisher) *Poller {
	return &Poller{
		store:   st,
		fetcher: fetcher,
		starter: starter,
		hub:     hub,
		tick:    time.Minute,
		now:     time.Now,
	}
}

// Run checks subscriptions every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll runs one pass over all subscriptions. Every due subscription gets its
// last_checked stamped, even when the check is skipped because a download for
// the same URL is already in flight.
func (p *Poller) poll(ctx context.Context) {
	subs, err := p.store.ListSubscriptions(ctx)
	if err != nil {
		slog.Error("Listing subscriptions failed", "error", err)
		return
	}

	var active map[string]bool
	for _, sub := range subs {
		if !sub.Due(p.now()) {
			continue
		}

		if active == nil {
			active, err = p.activeURLs(ctx)
			if err != nil {
				slog.Error("Listing active downloads failed", "error", err)
				return
			}
		}

		sub.LastChecked = p.now()
		if active[sub.URL] {
			slog.Debug("Skipping live check, download already active", "subscription", sub.ID, "url", sub.URL)
			p.persist(ctx, sub)
			continue
		}

		live, err := p.fetcher.IsLive(ctx, sub.URL)
		if err != nil {
			slog.Warn("Liveness check failed", "subscription", sub.ID, "url", sub.URL, "error", err)
			p.persist(ctx, sub)
			continue
		}
		if live {
			slog.Info("Subscription is live, starting download", "subscription", sub.ID, "url", sub.URL)
			if _, err := p.starter.Start(ctx, sub.URL, sub.Resolution); err != nil {
				slog.Error("Starting subscription download failed", "subscription", sub.ID, "error", err)
			} else {
				sub.LastTriggered = p.now()
			}
		}
		p.persist(ctx, sub)
	}
}

// activeURLs collects the URLs of downloads a pipeline is currently working
// on; a live source already being captured must not trigger a second job.
func (p *Poller) activeURLs(ctx context.Context) (map[string]bool, error) {
	jobs, err := p.store.ListDownloadsByStatus(ctx,
		model.DownloadStarting, model.DownloadDownloading,
		model.DownloadConverting, model.DownloadArchiving)
	if err != nil {
		return nil, err
	}
	urls := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		urls[job.URL] = true
	}
	return urls, nil
}

func (p *Poller) persist(ctx context.Context, sub *model.Subscription) {
	if err := p.store.UpsertSubscription(ctx, sub); err != nil {
		slog.Error("Persisting subscription failed", "id", sub.ID, "error", err)
		return
	}
	p.hub.Publish(notify.Event{Kind: notify.KindSubscription, Payload: sub})
}
