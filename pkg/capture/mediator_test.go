package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-verify/pkg/camera"
)

const waitFor = 2 * time.Second

// sink collects resolutions and lets tests wait for them.
type sink struct {
	ch chan Resolution
}

func newSink() *sink {
	return &sink{ch: make(chan Resolution, 8)}
}

func (s *sink) Resolve(r Resolution) { s.ch <- r }

func (s *sink) next(t *testing.T) Resolution {
	t.Helper()
	select {
	case r := <-s.ch:
		return r
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for resolution")
		return Resolution{}
	}
}

func (s *sink) none(t *testing.T) {
	t.Helper()
	select {
	case r := <-s.ch:
		t.Fatalf("unexpected resolution %#v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func ticket(id string) Ticket {
	return Ticket{Generation: 1, ID: id}
}

func waitReady(t *testing.T, o *Overlay) {
	t.Helper()
	select {
	case <-o.Ready():
	case <-time.After(waitFor):
		t.Fatal("overlay never became ready")
	}
}

func waitDone(t *testing.T, o *Overlay) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(waitFor):
		t.Fatal("overlay never closed")
	}
}

func TestPhotoCaptureResolvesOnce(t *testing.T) {
	mock := camera.NewMock()
	m := NewMediator(mock)
	s := newSink()

	m.Present(ticket("a"), PhotoRequest{IDType: "card", Step: StepFront}, s)
	o := m.Active()
	require.NotNil(t, o)
	waitReady(t, o)

	require.NoError(t, o.Shutter())
	r := s.next(t)

	assert.Equal(t, ticket("a"), r.Ticket)
	taken, ok := r.Outcome.(PhotoTaken)
	require.True(t, ok, "got %T", r.Outcome)
	assert.NotEmpty(t, taken.Picture.Data)

	assert.True(t, mock.LastHandle().Closed())
	assert.Nil(t, m.Active())
	assert.ErrorIs(t, o.Shutter(), ErrClosed)
	assert.ErrorIs(t, o.Exit(), ErrClosed)
	s.none(t)
}

func TestStepFacing(t *testing.T) {
	tests := []struct {
		step   Step
		facing camera.Facing
		guide  bool
	}{
		{StepFront, camera.FacingBack, true},
		{StepBack, camera.FacingBack, true},
		{StepPassport, camera.FacingBack, true},
		{StepSelfie, camera.FacingFront, false},
		{StepLiveness, camera.FacingFront, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.step), func(t *testing.T) {
			mock := camera.NewMock()
			m := NewMediator(mock)

			m.Present(ticket("a"), PhotoRequest{IDType: "card", Step: tt.step}, newSink())
			o := m.Active()
			require.NotNil(t, o)
			defer m.Dismiss()
			waitReady(t, o)

			calls := mock.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.facing, calls[0].Facing)

			v := o.View()
			assert.Equal(t, tt.facing, v.Facing)
			assert.Equal(t, tt.guide, v.Guide != nil)
			assert.Equal(t, ModePhoto, v.Mode)
		})
	}
}

func TestUnknownStepFailsWithoutOpening(t *testing.T) {
	mock := camera.NewMock()
	m := NewMediator(mock)
	s := newSink()

	m.Present(ticket("a"), PhotoRequest{Step: "SIDEWAYS"}, s)
	r := s.next(t)

	failed, ok := r.Outcome.(PhotoFailed)
	require.True(t, ok, "got %T", r.Outcome)
	assert.Equal(t, CodeUnsupportedStep, failed.Failure.Code)
	assert.Contains(t, failed.Failure.Message, "SIDEWAYS")
	assert.Empty(t, mock.Calls())
	assert.Nil(t, m.Active())
}

func TestShutterGatedOnReadiness(t *testing.T) {
	h := camera.NewMockHandle()
	mock := camera.NewMock()
	mock.OpenFunc = func(context.Context, camera.Facing, camera.Options) (camera.Handle, error) {
		return h, nil
	}
	m := NewMediator(mock)
	s := newSink()

	m.Present(ticket("a"), PhotoRequest{Step: StepSelfie}, s)
	o := m.Active()
	require.NotNil(t, o)

	assert.ErrorIs(t, o.Shutter(), ErrNotReady)
	assert.False(t, o.View().Ready)

	h.MarkReady()
	waitReady(t, o)
	assert.True(t, o.View().Ready)

	release := make(chan struct{})
	h.PictureFunc = func(ctx context.Context) (*camera.Picture, error) {
		<-release
		return &camera.Picture{Data: []byte{1}}, nil
	}
	require.NoError(t, o.Shutter())
	assert.ErrorIs(t, o.Shutter(), ErrBusy)
	close(release)

	_, ok := s.next(t).Outcome.(PhotoTaken)
	assert.True(t, ok)
}

func TestOpenFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"denied", camera.WrapError("0", camera.ErrNotAuthorized), CodeNotAuthorized},
		{"unavailable", camera.ErrUnavailable, CodeUnavailable},
		{"other", errors.New("boom"), CodeCaptureFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := camera.NewMock()
			mock.OpenFunc = func(context.Context, camera.Facing, camera.Options) (camera.Handle, error) {
				return nil, tt.err
			}
			m := NewMediator(mock)
			s := newSink()

			m.Present(ticket("a"), PhotoRequest{Step: StepFront}, s)
			r := s.next(t)

			failed, ok := r.Outcome.(PhotoFailed)
			require.True(t, ok, "got %T", r.Outcome)
			assert.Equal(t, tt.code, failed.Failure.Code)
			assert.NotEmpty(t, failed.Failure.Message)
		})
	}
}

func TestCaptureFailureMessage(t *testing.T) {
	mock := camera.NewMock()
	m := NewMediator(mock)
	s := newSink()

	m.Present(ticket("a"), PhotoRequest{Step: StepBack}, s)
	o := m.Active()
	require.NotNil(t, o)
	waitReady(t, o)

	mock.LastHandle().PictureFunc = func(context.Context) (*camera.Picture, error) {
		return nil, errors.New("sensor glitch")
	}
	require.NoError(t, o.Shutter())

	failed, ok := s.next(t).Outcome.(PhotoFailed)
	require.True(t, ok)
	assert.Equal(t, CodeCaptureFailed, failed.Failure.Code)
	assert.Equal(t, "Photo capture failed: sensor glitch", failed.Failure.Message)
}

func TestBarcodeRead(t *testing.T) {
	mock := camera.NewMock()
	h := camera.NewMockHandle()
	h.BarcodeFunc = func(context.Context) (string, error) {
		return "@ANSI 636014", nil
	}
	h.MarkReady()
	mock.OpenFunc = func(context.Context, camera.Facing, camera.Options) (camera.Handle, error) {
		return h, nil
	}
	m := NewMediator(mock)
	s := newSink()

	m.Present(ticket("b"), BarcodeRequest{}, s)
	r := s.next(t)

	read, ok := r.Outcome.(BarcodeRead)
	require.True(t, ok, "got %T", r.Outcome)
	assert.Equal(t, "@ANSI 636014", read.Payload)
	assert.True(t, h.Closed())
}

func TestBarcodeOpenFailureFallsBack(t *testing.T) {
	mock := camera.NewMock()
	mock.OpenFunc = func(context.Context, camera.Facing, camera.Options) (camera.Handle, error) {
		return nil, camera.ErrNotAuthorized
	}
	m := NewMediator(mock)
	s := newSink()

	m.Present(ticket("b"), BarcodeRequest{}, s)

	_, ok := s.next(t).Outcome.(BarcodeFallback)
	assert.True(t, ok)
}

func TestBarcodeTimeoutFallsBack(t *testing.T) {
	mock := camera.NewMock()
	m := NewMediator(mock)
	s := newSink()

	m.Present(ticket("b"), BarcodeRequest{Timeout: 30 * time.Millisecond}, s)
	o := m.Active()
	require.NotNil(t, o)

	_, ok := s.next(t).Outcome.(BarcodeFallback)
	assert.True(t, ok)
	waitDone(t, o)
	assert.Eventually(t, func() bool {
		h := mock.LastHandle()
		return h != nil && h.Closed()
	}, waitFor, 5*time.Millisecond)
}

func TestBarcodeControls(t *testing.T) {
	mock := camera.NewMock()
	m := NewMediator(mock)
	s := newSink()

	m.Present(ticket("b"), BarcodeRequest{}, s)
	o := m.Active()
	require.NotNil(t, o)
	waitReady(t, o)

	assert.ErrorIs(t, o.Shutter(), ErrWrongMode)

	on, err := o.ToggleTorch()
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, mock.LastHandle().Torch())

	v := o.View()
	assert.True(t, v.Torch)
	require.NotNil(t, v.Guide)
	assert.Equal(t, GuideBarcode, v.Guide.Kind)

	require.NoError(t, o.Fallback())
	_, ok := s.next(t).Outcome.(BarcodeFallback)
	assert.True(t, ok)

	assert.False(t, mock.LastHandle().Torch())
	assert.ErrorIs(t, o.Fallback(), ErrClosed)
}

func TestTorchFailureKeepsState(t *testing.T) {
	mock := camera.NewMock()
	m := NewMediator(mock)

	m.Present(ticket("b"), BarcodeRequest{}, newSink())
	o := m.Active()
	require.NotNil(t, o)
	defer m.Dismiss()
	waitReady(t, o)

	mock.LastHandle().TorchFunc = func(bool) error { return camera.ErrTorchUnsupported }
	on, err := o.ToggleTorch()
	assert.ErrorIs(t, err, camera.ErrTorchUnsupported)
	assert.False(t, on)
}

func TestPhotoModeRejectsBarcodeActions(t *testing.T) {
	m := NewMediator(camera.NewMock())
	m.Present(ticket("a"), PhotoRequest{Step: StepFront}, newSink())
	o := m.Active()
	require.NotNil(t, o)
	defer m.Dismiss()

	_, err := o.ToggleTorch()
	assert.ErrorIs(t, err, ErrWrongMode)
	assert.ErrorIs(t, o.Fallback(), ErrWrongMode)
}

func TestExitResolves(t *testing.T) {
	t.Run("photo reports cancelled", func(t *testing.T) {
		mock := camera.NewMock()
		m := NewMediator(mock)
		s := newSink()

		m.Present(ticket("a"), PhotoRequest{Step: StepFront}, s)
		o := m.Active()
		require.NotNil(t, o)
		waitReady(t, o)

		require.NoError(t, o.Exit())
		failed, ok := s.next(t).Outcome.(PhotoFailed)
		require.True(t, ok)
		assert.Equal(t, CodeCancelled, failed.Failure.Code)
		assert.True(t, mock.LastHandle().Closed())
	})

	t.Run("barcode exits silently", func(t *testing.T) {
		mock := camera.NewMock()
		m := NewMediator(mock)
		s := newSink()

		m.Present(ticket("b"), BarcodeRequest{}, s)
		o := m.Active()
		require.NotNil(t, o)
		waitReady(t, o)

		require.NoError(t, o.Exit())
		_, ok := s.next(t).Outcome.(Exited)
		assert.True(t, ok)
		assert.True(t, mock.LastHandle().Closed())
	})
}

func TestReadinessFailureReported(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		prepare func(h *camera.MockHandle)
		check   func(t *testing.T, outcome Outcome)
	}{
		{
			name:    "photo init failure",
			req:     PhotoRequest{Step: StepFront},
			prepare: func(h *camera.MockHandle) { h.Fail(camera.ErrUnavailable) },
			check: func(t *testing.T, outcome Outcome) {
				failed, ok := outcome.(PhotoFailed)
				require.True(t, ok, "got %T", outcome)
				assert.Equal(t, CodeUnavailable, failed.Failure.Code)
			},
		},
		{
			name:    "photo never ready",
			req:     PhotoRequest{Step: StepFront},
			prepare: func(*camera.MockHandle) {},
			check: func(t *testing.T, outcome Outcome) {
				failed, ok := outcome.(PhotoFailed)
				require.True(t, ok, "got %T", outcome)
				assert.Equal(t, CodeUnavailable, failed.Failure.Code)
			},
		},
		{
			name:    "barcode never ready",
			req:     BarcodeRequest{},
			prepare: func(*camera.MockHandle) {},
			check: func(t *testing.T, outcome Outcome) {
				_, ok := outcome.(BarcodeFallback)
				assert.True(t, ok, "got %T", outcome)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := camera.NewMockHandle()
			tt.prepare(h)
			mock := camera.NewMock()
			mock.OpenFunc = func(context.Context, camera.Facing, camera.Options) (camera.Handle, error) {
				return h, nil
			}
			m := NewMediator(mock, WithReadyTimeout(30*time.Millisecond))
			s := newSink()

			m.Present(ticket("a"), tt.req, s)
			tt.check(t, s.next(t).Outcome)

			assert.True(t, h.Closed())
			assert.Nil(t, m.Active())
			s.none(t)
		})
	}
}

func TestMissingPictureFails(t *testing.T) {
	mock := camera.NewMock()
	m := NewMediator(mock)
	s := newSink()

	m.Present(ticket("a"), PhotoRequest{Step: StepFront}, s)
	o := m.Active()
	require.NotNil(t, o)
	waitReady(t, o)

	mock.LastHandle().PictureFunc = func(context.Context) (*camera.Picture, error) {
		return nil, nil
	}
	require.NoError(t, o.Shutter())

	failed, ok := s.next(t).Outcome.(PhotoFailed)
	require.True(t, ok)
	assert.Equal(t, CodeCaptureFailed, failed.Failure.Code)
}

func TestReleaseBeforeResolve(t *testing.T) {
	mock := camera.NewMock()
	m := NewMediator(mock)

	var closedFirst bool
	resolved := make(chan struct{})
	m.Present(ticket("a"), PhotoRequest{Step: StepFront}, ResolverFunc(func(Resolution) {
		closedFirst = mock.LastHandle().Closed()
		close(resolved)
	}))
	o := m.Active()
	require.NotNil(t, o)
	waitReady(t, o)
	require.NoError(t, o.Shutter())

	select {
	case <-resolved:
	case <-time.After(waitFor):
		t.Fatal("timed out")
	}
	assert.True(t, closedFirst, "camera must be released before the outcome is reported")
}

func TestDismissDoesNotResolve(t *testing.T) {
	mock := camera.NewMock()
	m := NewMediator(mock)
	s := newSink()

	m.Present(ticket("a"), PhotoRequest{Step: StepFront}, s)
	o := m.Active()
	require.NotNil(t, o)
	waitReady(t, o)

	m.Dismiss()
	waitDone(t, o)
	assert.Nil(t, m.Active())
	assert.True(t, mock.LastHandle().Closed())
	assert.ErrorIs(t, o.Shutter(), ErrClosed)
	s.none(t)
}

func TestPresentReplacesActiveOverlay(t *testing.T) {
	mock := camera.NewMock()
	m := NewMediator(mock)
	first, second := newSink(), newSink()

	m.Present(ticket("a"), PhotoRequest{Step: StepFront}, first)
	o1 := m.Active()
	require.NotNil(t, o1)
	waitReady(t, o1)

	m.Present(ticket("b"), BarcodeRequest{}, second)
	o2 := m.Active()
	require.NotNil(t, o2)
	assert.NotSame(t, o1, o2)

	waitDone(t, o1)
	first.none(t)
	m.Dismiss()
}

func TestDismissWhileOpening(t *testing.T) {
	h := camera.NewMockHandle()
	opened := make(chan struct{})
	proceed := make(chan struct{})
	mock := camera.NewMock()
	mock.OpenFunc = func(context.Context, camera.Facing, camera.Options) (camera.Handle, error) {
		close(opened)
		<-proceed
		return h, nil
	}
	m := NewMediator(mock)
	s := newSink()

	m.Present(ticket("a"), PhotoRequest{Step: StepFront}, s)
	<-opened
	m.Dismiss()
	close(proceed)

	assert.Eventually(t, h.Closed, waitFor, 5*time.Millisecond)
	s.none(t)
}

func TestOptionsFromManager(t *testing.T) {
	mgr := camera.NewManager()
	require.NoError(t, mgr.Update(map[string]any{"preset": camera.PresetLowRes}))

	got := make(chan camera.Options, 1)
	mock := camera.NewMock()
	mock.OpenFunc = func(_ context.Context, _ camera.Facing, opts camera.Options) (camera.Handle, error) {
		got <- opts
		h := camera.NewMockHandle()
		h.MarkReady()
		return h, nil
	}
	m := NewMediator(mock, WithOptions(mgr), WithDisplay(Display{Width: 200, Height: 400}))
	m.Present(ticket("a"), PhotoRequest{IDType: "passport", Step: StepPassport}, newSink())
	defer m.Dismiss()

	select {
	case opts := <-got:
		assert.Equal(t, camera.LowResOptions().Width, opts.Width)
	case <-time.After(waitFor):
		t.Fatal("capability never opened")
	}

	g := m.Active().View().Guide
	require.NotNil(t, g)
	assert.Equal(t, GuidePassport, g.Kind)
	assert.InDelta(t, 180, g.Width, 0.001)
}
