package pipeline

import (
	"context"
	"sync"
	"time"

	"thirdcoast.systems/streamvault/internal/model"
	"thirdcoast.systems/streamvault/internal/notify"
	"thirdcoast.systems/streamvault/internal/store"
	"thirdcoast.systems/streamvault/pkg/ytdlp"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	mu          sync.Mutex
	downloads   map[string]*model.DownloadJob
	conversions map[string]*model.ConversionJob
	videos      map[string]*model.ArchivedVideo
	subs        map[string]*model.Subscription
}

func newMemStore() *memStore {
	return &memStore{
		downloads:   make(map[string]*model.DownloadJob),
		conversions: make(map[string]*model.ConversionJob),
		videos:      make(map[string]*model.ArchivedVideo),
		subs:        make(map[string]*model.Subscription),
	}
}

func (m *memStore) GetDownload(_ context.Context, id string) (*model.DownloadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.downloads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) ListDownloadsByStatus(_ context.Context, statuses ...model.DownloadStatus) ([]*model.DownloadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*model.DownloadJob
	for _, job := range m.downloads {
		for _, st := range statuses {
			if job.Status == st {
				cp := *job
				jobs = append(jobs, &cp)
				break
			}
		}
	}
	return jobs, nil
}

func (m *memStore) UpsertDownload(_ context.Context, job *model.DownloadJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.UpdatedAt = time.Now()
	cp := *job
	m.downloads[job.ID] = &cp
	return nil
}

func (m *memStore) DeleteDownload(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.downloads, id)
	return nil
}

func (m *memStore) GetConversion(_ context.Context, id string) (*model.ConversionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.conversions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) GetConversionByDownload(_ context.Context, downloadID string) (*model.ConversionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.conversions {
		if job.DownloadID == downloadID {
			cp := *job
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListConversionsByStatus(_ context.Context, statuses ...model.ConversionStatus) ([]*model.ConversionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*model.ConversionJob
	for _, job := range m.conversions {
		for _, st := range statuses {
			if job.Status == st {
				cp := *job
				jobs = append(jobs, &cp)
				break
			}
		}
	}
	return jobs, nil
}

func (m *memStore) UpsertConversion(_ context.Context, job *model.ConversionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.UpdatedAt = time.Now()
	cp := *job
	m.conversions[job.ID] = &cp
	return nil
}

func (m *memStore) DeleteConversion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversions, id)
	return nil
}

func (m *memStore) InsertArchivedVideo(_ context.Context, v *model.ArchivedVideo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.videos[v.ID] = &cp
	return nil
}

func (m *memStore) ListSubscriptions(_ context.Context) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var subs []*model.Subscription
	for _, sub := range m.subs {
		cp := *sub
		subs = append(subs, &cp)
	}
	return subs, nil
}

func (m *memStore) UpsertSubscription(_ context.Context, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.subs[sub.ID] = &cp
	return nil
}

// fakeFetcher scripts yt-dlp behavior.
type fakeFetcher struct {
	mu         sync.Mutex
	downloadFn func(ctx context.Context, req ytdlp.DownloadRequest, onLine func(string)) error
	liveByURL  map[string]bool
	liveErr    error
	liveCalls  []string
}

func (f *fakeFetcher) Download(ctx context.Context, req ytdlp.DownloadRequest, onLine func(string)) error {
	if f.downloadFn != nil {
		return f.downloadFn(ctx, req, onLine)
	}
	return nil
}

func (f *fakeFetcher) IsLive(_ context.Context, url string) (bool, error) {
	f.mu.Lock()
	f.liveCalls = append(f.liveCalls, url)
	f.mu.Unlock()
	if f.liveErr != nil {
		return false, f.liveErr
	}
	return f.liveByURL[url], nil
}

// fakeTranscoder scripts ffmpeg/ffprobe behavior and records call ordering.
type fakeTranscoder struct {
	mu          sync.Mutex
	duration    float64
	probeErr    error
	transcodeFn func(ctx context.Context, input, output string, onLine func(string)) error
	frameErr    error
	frames      []string
	sequence    []string
}

func (f *fakeTranscoder) Transcode(ctx context.Context, input, output string, onLine func(string)) error {
	f.mu.Lock()
	f.sequence = append(f.sequence, "start "+input)
	f.mu.Unlock()

	var err error
	if f.transcodeFn != nil {
		err = f.transcodeFn(ctx, input, output, onLine)
	}

	f.mu.Lock()
	f.sequence = append(f.sequence, "end "+input)
	f.mu.Unlock()
	return err
}

func (f *fakeTranscoder) ExtractFrame(_ context.Context, _, output string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frameErr != nil {
		return f.frameErr
	}
	f.frames = append(f.frames, output)
	return nil
}

func (f *fakeTranscoder) ProbeDuration(_ context.Context, _ string) (float64, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.duration, nil
}

// recordingHub captures published events.
type recordingHub struct {
	mu     sync.Mutex
	events []notify.Event
}

func (h *recordingHub) Publish(ev notify.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHub) kinds() []notify.Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]notify.Kind, len(h.events))
	for i, ev := range h.events {
		out[i] = ev.Kind
	}
	return out
}

// fakeStarter records download start requests from the poller.
type fakeStarter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeStarter) Start(_ context.Context, url, resolution string) (*model.DownloadJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, url+" "+resolution)
	return &model.DownloadJob{ID: "fake", URL: url, Resolution: resolution}, nil
}
