package transcode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/platform"
)

type fakeAPI struct {
	slot       model.UploadSlot
	slotErr    error
	putErr     error
	readyAfter int // polls before the hash appears; <0 never
	pollErrs   map[int]error

	putCalls  int
	pollCalls int
}

func (f *fakeAPI) RequestUploadSlot(context.Context, string) (model.UploadSlot, error) {
	return f.slot, f.slotErr
}

func (f *fakeAPI) PutAudio(_ context.Context, _ string, _ []byte) error {
	f.putCalls++
	return f.putErr
}

func (f *fakeAPI) TranscodeStatus(context.Context, string, string) (platform.TranscodeStatus, error) {
	f.pollCalls++
	if err := f.pollErrs[f.pollCalls]; err != nil {
		return platform.TranscodeStatus{}, err
	}
	if f.readyAfter < 0 || f.pollCalls <= f.readyAfter {
		return platform.TranscodeStatus{}, nil
	}
	return platform.TranscodeStatus{Ready: true, Result: model.TranscodeResult{
		ContentHash:   "hash-1",
		Duration:      42.5,
		FileSizeBytes: 1024,
		ChannelLayout: "mono",
		Format:        "aac",
	}}, nil
}

func (f *fakeAPI) ListContent(context.Context, string) ([]model.CardSummary, error) { return nil, nil }

func (f *fakeAPI) GetContent(context.Context, string, string) (*model.Card, error) { return nil, nil }

func (f *fakeAPI) WriteContent(context.Context, model.Card, string) (*model.Card, error) {
	return nil, nil
}

type recordingSleeper struct {
	calls int
	total time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.calls++
	r.total += d
	return nil
}

func validSlot() model.UploadSlot {
	return model.UploadSlot{UploadURL: "https://upload.example/put", UploadID: "up-1"}
}

func TestUploadAndTranscodeReturnsFirstHash(t *testing.T) {
	api := &fakeAPI{slot: validSlot(), readyAfter: 3}
	sleeper := &recordingSleeper{}
	u := NewUploader(api, WithSleeper(sleeper.sleep))

	result, err := u.UploadAndTranscode(context.Background(), []byte("mp3"), "tok")
	if err != nil {
		t.Fatalf("UploadAndTranscode returned error: %v", err)
	}
	if result.ContentHash != "hash-1" || result.Duration != 42.5 {
		t.Errorf("unexpected result %+v", result)
	}
	if api.pollCalls != 4 {
		t.Errorf("expected polling to stop at the first hash (4 polls), got %d", api.pollCalls)
	}
	if sleeper.calls != 3 || sleeper.total != 3*DefaultPollInterval {
		t.Errorf("expected 3 sleeps of %v, got %d totalling %v", DefaultPollInterval, sleeper.calls, sleeper.total)
	}
}

func TestUploadAndTranscodeTimesOut(t *testing.T) {
	api := &fakeAPI{slot: validSlot(), readyAfter: -1}
	sleeper := &recordingSleeper{}
	u := NewUploader(api, WithSleeper(sleeper.sleep))

	_, err := u.UploadAndTranscode(context.Background(), []byte("mp3"), "tok")

	var timeout *apperr.TranscodeTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TranscodeTimeoutError, got %v", err)
	}
	if timeout.Attempts != 60 || timeout.UploadID != "up-1" {
		t.Errorf("unexpected timeout fields %+v", timeout)
	}
	if !errors.Is(err, apperr.ErrExternalService) {
		t.Error("timeout should also be an external service failure")
	}
	if api.pollCalls != 60 {
		t.Errorf("expected 60 polls, got %d", api.pollCalls)
	}
	if sleeper.total != 59*DefaultPollInterval {
		t.Errorf("expected 59 waits, slept %v", sleeper.total)
	}
}

func TestMissingUploadURLSkipsPut(t *testing.T) {
	api := &fakeAPI{slot: model.UploadSlot{UploadID: "up-1"}}
	u := NewUploader(api)

	_, err := u.UploadAndTranscode(context.Background(), []byte("mp3"), "tok")
	if !errors.Is(err, apperr.ErrUpload) {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if api.putCalls != 0 {
		t.Errorf("expected no PUT, got %d", api.putCalls)
	}
}

func TestPutFailureIsUploadFailure(t *testing.T) {
	api := &fakeAPI{slot: validSlot(), putErr: &platform.StatusError{Method: "PUT", Status: 500}}
	_, err := NewUploader(api).UploadAndTranscode(context.Background(), []byte("mp3"), "tok")
	if !errors.Is(err, apperr.ErrUpload) {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if api.pollCalls != 0 {
		t.Error("should not poll after a failed upload")
	}
}

func TestPollErrorsCountAsAttempts(t *testing.T) {
	api := &fakeAPI{
		slot:       validSlot(),
		readyAfter: 0,
		pollErrs:   map[int]error{1: errors.New("connection reset"), 2: errors.New("502")},
	}
	u := NewUploader(api, WithSleeper((&recordingSleeper{}).sleep), WithMaxAttempts(5))

	result, err := u.UploadAndTranscode(context.Background(), []byte("mp3"), "tok")
	if err != nil {
		t.Fatalf("UploadAndTranscode returned error: %v", err)
	}
	if result.ContentHash == "" || api.pollCalls != 3 {
		t.Errorf("expected success on third poll, got %d polls", api.pollCalls)
	}
}

func TestPollHonoursCancellation(t *testing.T) {
	api := &fakeAPI{slot: validSlot(), readyAfter: -1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := NewUploader(api, WithPollInterval(time.Hour))
	_, err := u.UploadAndTranscode(ctx, []byte("mp3"), "tok")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if api.pollCalls != 1 {
		t.Errorf("expected a single poll before cancellation, got %d", api.pollCalls)
	}
}
