package process

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/eidaws/federator/internal/ferr"
	"github.com/eidaws/federator/internal/nlog"
)

// pollInterval is the default readiness-scan cadence.
const pollInterval = 50 * time.Millisecond

// Variant is the set of per-format hooks the template fills in:
// header/footer bytes, an optional inter-task separator, the streaming
// chunk size, and the 413 extension point.
type Variant struct {
	Name      string
	ChunkSize int
	Header    []byte
	Footer    []byte
	Separator []byte
	// StripBrackets strips a leading '[' and trailing ']' from each body
	// before writing it (wfcatalog: the envelope owns the outer brackets).
	StripBrackets bool
	// Handle413 is the variant's extension point for a payload-too-large
	// sub-request; current policy for every variant is log-and-drop, so
	// the default (nil) is sufficient unless a caller wants to observe it.
	Handle413 func(ctx context.Context, label string)
}

// Run executes the template pipeline against submissions (already bound
// to their variant-specific task constructors) and writes the streamed
// response to w. StreamingTimeout bounds Phase 1 only.
func Run(ctx context.Context, w io.Writer, v Variant, submissions []func(ctx context.Context) (Outcome, error), poolSize int, streamingTimeout time.Duration) error {
	pool := NewWorkerPool(min(len(submissions), poolSize))
	handles := make([]*TaskHandle, len(submissions))
	for i, fn := range submissions {
		fn := fn
		handles[i] = pool.Submit(func() (Outcome, error) { return fn(ctx) })
	}

	if err := awaitFirstData(ctx, handles, streamingTimeout); err != nil {
		drainAndCleanup(handles)
		pool.Close()
		return err
	}

	if _, err := w.Write(v.Header); err != nil {
		drainAndCleanup(handles)
		pool.Close()
		return &ferr.StreamingError{Cause: err}
	}

	if err := streamBodies(ctx, w, v, handles); err != nil {
		drainAndCleanup(handles)
		pool.Close()
		return err // envelope footer intentionally not written; connection half-written
	}

	if _, err := w.Write(v.Footer); err != nil {
		pool.Close()
		return &ferr.StreamingError{Cause: err}
	}
	pool.Close()
	return nil
}

// awaitFirstData is Phase 1: block until some handle is
// ready with a 200, every handle is done, or the streaming timeout
// elapses. Fails with NoContent if no 200 was ever observed.
func awaitFirstData(ctx context.Context, handles []*TaskHandle, timeout time.Duration) error {
	t0 := time.Now()
	for {
		sawAny200 := false
		doneCount := 0
		for _, h := range handles {
			if !h.Ready() {
				continue
			}
			doneCount++
			if h.Peek().StatusCode == http.StatusOK {
				sawAny200 = true
			}
		}
		if sawAny200 {
			return nil
		}
		if doneCount == len(handles) {
			return &ferr.NoContent{Reason: "no endpoint task ever returned 200"}
		}
		if time.Since(t0) > timeout {
			return &ferr.NoContent{Reason: "streaming timeout elapsed before any endpoint answered"}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// streamBodies is Phase 2: repeatedly scan outstanding
// handles and drain ready ones in the order the scan finds them ("no
// guarantee of input order"), writing each 200 body, applying the variant
// separator/bracket-stripping, and routing 413s to the hook.
func streamBodies(ctx context.Context, w io.Writer, v Variant, handles []*TaskHandle) error {
	remaining := append([]*TaskHandle(nil), handles...)
	firstBody := true
	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0]
		for _, h := range remaining {
			if !h.Ready() {
				next = append(next, h)
				continue
			}
			progressed = true
			outcome, err := h.Get()
			switch {
			case err != nil:
				nlog.Warningf("process: task %q failed: %v", outcome.Label, err)
			case outcome.StatusCode == http.StatusOK:
				if v.Name == "wfcatalog" && !firstBody {
					if _, werr := w.Write(v.Separator); werr != nil {
						return &ferr.StreamingError{Cause: werr}
					}
				}
				if err := writeBody(w, outcome, v); err != nil {
					outcome.Cleanup()
					return &ferr.StreamingError{Cause: err}
				}
				outcome.Cleanup()
				firstBody = false
			case outcome.StatusCode == http.StatusRequestEntityTooLarge:
				nlog.Warningf("process: %q returned 413, dropping (split-and-retry not implemented)", outcome.Label)
				if v.Handle413 != nil {
					v.Handle413(ctx, outcome.Label)
				}
			default:
				nlog.Warningf("process: %q returned status %d, skipping", outcome.Label, outcome.StatusCode)
			}
		}
		remaining = next
		if !progressed && len(remaining) > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}
	return nil
}

func writeBody(w io.Writer, outcome Outcome, v Variant) error {
	if outcome.Open == nil {
		return nil
	}
	rc, err := outcome.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if !v.StripBrackets {
		buf := make([]byte, max(v.ChunkSize, 4096))
		_, err := io.CopyBuffer(w, rc, buf)
		return err
	}

	body, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	body = bytes.TrimPrefix(body, []byte{'['})
	body = bytes.TrimSuffix(body, []byte{']'})
	_, err = w.Write(body)
	return err
}

// drainAndCleanup discards every handle's eventual payload so no
// task-owned spool file outlives the request.
func drainAndCleanup(handles []*TaskHandle) {
	for _, h := range handles {
		go func(h *TaskHandle) {
			outcome, _ := h.Get()
			if outcome.Cleanup != nil {
				outcome.Cleanup()
			}
		}(h)
	}
}
