// ABOUTME: Tests for the timed stream source
// ABOUTME: Covers alignment, catch-up, gaps, starvation and waiting
package stream

import (
	"testing"
	"time"

	"github.com/tempocast/tempocast-go/pkg/audio"
)

type fakeClock struct {
	now int64
}

func (f *fakeClock) ServerNow() int64 {
	return f.now
}

func testFormat() audio.Format {
	return audio.Format{
		Codec:      audio.CodecPCM,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}
}

// rampChunk builds a chunk whose sample values encode their position,
// so tests can verify exactly which frames land where.
func rampChunk(ts int64, frames, channels int, base int32) audio.Chunk {
	samples := make([]int32, frames*channels)
	for i := range samples {
		samples[i] = base + int32(i)
	}
	return audio.Chunk{Timestamp: ts, Samples: samples}
}

func periodBuf() []int32 {
	return make([]int32, 480*2) // 10ms at 48kHz stereo
}

func TestGetPlayerChunk_StarvedWhenEmpty(t *testing.T) {
	src := NewSource(&fakeClock{now: 1_000_000}, testFormat(), 0)

	if src.GetPlayerChunk(periodBuf(), 0) {
		t.Error("expected false from empty source")
	}

	stats := src.Stats()
	if stats.Starved != 1 {
		t.Errorf("expected 1 starved request, got %d", stats.Starved)
	}
}

func TestGetPlayerChunk_AlignedCopy(t *testing.T) {
	clock := &fakeClock{now: 1_000_000}
	src := NewSource(clock, testFormat(), 0)
	src.Push(rampChunk(1_000_000, 960, 2, 1000))

	dst := periodBuf()
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected data for aligned chunk")
	}
	if dst[0] != 1000 {
		t.Errorf("expected first sample 1000, got %d", dst[0])
	}
	if dst[959] != 1000+959 {
		t.Errorf("expected last sample %d, got %d", 1000+959, dst[959])
	}

	// The next period continues where the cursor left off.
	clock.now += 10_000
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected data for second period")
	}
	if dst[0] != 1000+960 {
		t.Errorf("expected continuation sample %d, got %d", 1000+960, dst[0])
	}

	// The chunk is exhausted now.
	clock.now += 10_000
	if src.GetPlayerChunk(dst, 0) {
		t.Error("expected starvation after chunk exhausted")
	}
}

func TestGetPlayerChunk_SeamlessAcrossChunks(t *testing.T) {
	clock := &fakeClock{now: 1_000_000}
	src := NewSource(clock, testFormat(), 0)
	src.Push(rampChunk(1_000_000, 240, 2, 1000))
	src.Push(rampChunk(1_005_000, 240, 2, 5000))

	dst := periodBuf()
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected data spanning both chunks")
	}
	if dst[479] != 1000+479 {
		t.Errorf("expected sample %d at end of first chunk, got %d", 1000+479, dst[479])
	}
	if dst[480] != 5000 {
		t.Errorf("expected second chunk to start at 5000, got %d", dst[480])
	}
}

func TestGetPlayerChunk_PreRollSilence(t *testing.T) {
	src := NewSource(&fakeClock{now: 1_000_000}, testFormat(), 0)
	src.Push(rampChunk(1_050_000, 480, 2, 1000))

	dst := periodBuf()
	dst[0] = 42 // ensure the source actually zeroes
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected success for scheduled silence")
	}
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("expected silence at %d, got %d", i, v)
		}
	}

	stats := src.Stats()
	if stats.SilencePeriods != 1 {
		t.Errorf("expected 1 silence period, got %d", stats.SilencePeriods)
	}
	if stats.Starved != 0 {
		t.Errorf("expected no starvation, got %d", stats.Starved)
	}
}

func TestGetPlayerChunk_PartialSilencePrefix(t *testing.T) {
	// The chunk starts 5ms into the 10ms period.
	src := NewSource(&fakeClock{now: 1_000_000}, testFormat(), 0)
	src.Push(rampChunk(1_005_000, 480, 2, 1000))

	dst := periodBuf()
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected data with silence prefix")
	}
	for i := 0; i < 240*2; i++ {
		if dst[i] != 0 {
			t.Fatalf("expected silence at %d, got %d", i, dst[i])
		}
	}
	if dst[240*2] != 1000 {
		t.Errorf("expected chunk start at frame 240, got %d", dst[240*2])
	}
}

func TestGetPlayerChunk_GradualCatchUp(t *testing.T) {
	// 20ms behind: inside the gradual window, so only a bounded slice
	// of frames is dropped per request.
	src := NewSource(&fakeClock{now: 1_020_000}, testFormat(), 0)
	src.Push(rampChunk(1_000_000, 1200, 2, 1000))

	dst := periodBuf()
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected data while catching up")
	}

	stats := src.Stats()
	if stats.SkippedFrames != 120 {
		t.Errorf("expected 120 frames skipped, got %d", stats.SkippedFrames)
	}
	if stats.HardSyncs != 0 {
		t.Errorf("expected no hard sync, got %d", stats.HardSyncs)
	}
	if dst[0] != 1000+120*2 {
		t.Errorf("expected playback to resume at sample %d, got %d", 1000+120*2, dst[0])
	}
}

func TestGetPlayerChunk_HardSync(t *testing.T) {
	// 200ms behind: beyond the gradual window, skip straight to now.
	src := NewSource(&fakeClock{now: 1_200_000}, testFormat(), 0)
	src.Push(rampChunk(1_000_000, 12000, 2, 1000))

	dst := periodBuf()
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected data after hard sync")
	}

	stats := src.Stats()
	if stats.HardSyncs != 1 {
		t.Errorf("expected 1 hard sync, got %d", stats.HardSyncs)
	}
	if stats.SkippedFrames != 9600 {
		t.Errorf("expected 9600 frames skipped, got %d", stats.SkippedFrames)
	}
	if dst[0] != 1000+9600*2 {
		t.Errorf("expected playback aligned at sample %d, got %d", 1000+9600*2, dst[0])
	}
}

func TestGetPlayerChunk_StaleOnlyBufferStarves(t *testing.T) {
	src := NewSource(&fakeClock{now: 1_200_000}, testFormat(), 0)
	src.Push(rampChunk(1_000_000, 480, 2, 1000))

	if src.GetPlayerChunk(periodBuf(), 0) {
		t.Error("expected starvation when all buffered audio is stale")
	}

	stats := src.Stats()
	if stats.Starved != 1 {
		t.Errorf("expected 1 starved request, got %d", stats.Starved)
	}
	if src.Buffered() != 0 {
		t.Errorf("expected stale audio discarded, still buffered %v", src.Buffered())
	}
}

func TestGetPlayerChunk_GapRendersSilence(t *testing.T) {
	clock := &fakeClock{now: 1_000_000}
	src := NewSource(clock, testFormat(), 0)
	src.Push(rampChunk(1_000_000, 240, 2, 1000))
	src.Push(rampChunk(1_010_000, 480, 2, 5000)) // 5ms gap after the first

	dst := periodBuf()
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected data before the gap")
	}
	if dst[479] != 1000+479 {
		t.Errorf("expected first chunk data, got %d", dst[479])
	}
	for i := 480; i < len(dst); i++ {
		if dst[i] != 0 {
			t.Fatalf("expected gap silence at %d, got %d", i, dst[i])
		}
	}

	// The next period picks up the second chunk exactly on time.
	clock.now += 10_000
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected second chunk data")
	}
	if dst[0] != 5000 {
		t.Errorf("expected second chunk start 5000, got %d", dst[0])
	}
}

func TestGetPlayerChunk_OverlapSkipsDuplicateFrames(t *testing.T) {
	clock := &fakeClock{now: 1_000_000}
	src := NewSource(clock, testFormat(), 0)
	src.Push(rampChunk(1_000_000, 240, 2, 1000))
	src.Push(rampChunk(1_002_500, 480, 2, 5000)) // overlaps the first by 2.5ms

	dst := periodBuf()
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected data across overlapping chunks")
	}
	if dst[479] != 1000+479 {
		t.Errorf("expected first chunk played fully, got %d", dst[479])
	}
	// The second chunk continues from its frame 120, past the overlap.
	if dst[480] != 5000+240 {
		t.Errorf("expected overlap skipped, got %d at frame 240", dst[480])
	}
}

func TestGetPlayerChunk_OutOfOrderPush(t *testing.T) {
	src := NewSource(&fakeClock{now: 1_000_000}, testFormat(), 0)
	src.Push(rampChunk(1_005_000, 240, 2, 5000))
	src.Push(rampChunk(1_000_000, 240, 2, 1000))

	dst := periodBuf()
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected data")
	}
	if dst[0] != 1000 {
		t.Errorf("expected earlier chunk first, got %d", dst[0])
	}
	if dst[480] != 5000 {
		t.Errorf("expected later chunk second, got %d", dst[480])
	}
}

func TestGetPlayerChunk_DelayShiftsTarget(t *testing.T) {
	// The chunk is due 10ms from now. With 10ms of device queue delay
	// its first frame is exactly what should be committed next.
	src := NewSource(&fakeClock{now: 1_000_000}, testFormat(), 0)
	src.Push(rampChunk(1_010_000, 480, 2, 1000))

	dst := periodBuf()
	if !src.GetPlayerChunk(dst, 10*time.Millisecond) {
		t.Fatal("expected data")
	}
	if dst[0] != 1000 {
		t.Errorf("expected chunk served at delay-shifted target, got %d", dst[0])
	}
}

func TestGetPlayerChunk_LatencyShiftsTarget(t *testing.T) {
	src := NewSource(&fakeClock{now: 1_000_000}, testFormat(), 10*time.Millisecond)
	src.Push(rampChunk(1_010_000, 480, 2, 1000))

	dst := periodBuf()
	if !src.GetPlayerChunk(dst, 0) {
		t.Fatal("expected data")
	}
	if dst[0] != 1000 {
		t.Errorf("expected chunk served early by configured latency, got %d", dst[0])
	}
}

func TestWaitForChunk_LevelTriggered(t *testing.T) {
	src := NewSource(&fakeClock{now: 1_000_000}, testFormat(), 0)
	src.Push(rampChunk(1_000_000, 480, 2, 1000))

	start := time.Now()
	if !src.WaitForChunk(time.Second) {
		t.Fatal("expected immediate true with buffered data")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("expected immediate return, took %v", elapsed)
	}
}

func TestWaitForChunk_TimesOut(t *testing.T) {
	src := NewSource(&fakeClock{now: 1_000_000}, testFormat(), 0)

	if src.WaitForChunk(20 * time.Millisecond) {
		t.Error("expected timeout with no data")
	}
}

func TestWaitForChunk_WakesOnPush(t *testing.T) {
	src := NewSource(&fakeClock{now: 1_000_000}, testFormat(), 0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		src.Push(rampChunk(1_000_000, 480, 2, 1000))
	}()

	if !src.WaitForChunk(time.Second) {
		t.Error("expected wake on push")
	}
}

func TestBuffered(t *testing.T) {
	clock := &fakeClock{now: 1_000_000}
	src := NewSource(clock, testFormat(), 0)
	if src.Buffered() != 0 {
		t.Errorf("expected empty source, got %v", src.Buffered())
	}

	src.Push(rampChunk(1_000_000, 960, 2, 1000))
	if src.Buffered() != 20*time.Millisecond {
		t.Errorf("expected 20ms buffered, got %v", src.Buffered())
	}

	src.GetPlayerChunk(periodBuf(), 0)
	if src.Buffered() != 10*time.Millisecond {
		t.Errorf("expected 10ms after one period, got %v", src.Buffered())
	}
}

func TestReset(t *testing.T) {
	src := NewSource(&fakeClock{now: 1_000_000}, testFormat(), 0)
	src.Push(rampChunk(1_000_000, 960, 2, 1000))

	src.Reset()

	if src.Buffered() != 0 {
		t.Errorf("expected nothing buffered after reset, got %v", src.Buffered())
	}
	if src.GetPlayerChunk(periodBuf(), 0) {
		t.Error("expected starvation after reset")
	}
	if got := src.Stats().Received; got != 1 {
		t.Errorf("expected cumulative stats to survive reset, got %d received", got)
	}
}
