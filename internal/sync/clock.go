// ABOUTME: Clock synchronization with drift compensation
// ABOUTME: Tracks both offset AND drift to handle clock frequency differences
package sync

import (
	"log"
	"sync"
	"time"
)

// ClockSync estimates the server clock from four-timestamp exchanges,
// tracking offset and drift so timestamps stay aligned between syncs.
type ClockSync struct {
	mu             sync.RWMutex
	offset         int64   // Current offset in microseconds (server - client)
	drift          float64 // Clock drift rate (dimensionless: μs/μs)
	rawOffset      int64   // Latest raw offset measurement
	rtt            int64   // Latest round-trip time
	quality        Quality
	lastSync       time.Time
	lastSyncMicros int64 // Client time (μs) when offset/drift were last updated
	sampleCount    int
	smoothingRate  float64
}

// Quality represents sync quality
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

// String returns the quality label shown in status output.
func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

// NewClockSync creates a new clock synchronizer
func NewClockSync() *ClockSync {
	return &ClockSync{
		smoothingRate: 0.1, // 10% weight to new samples
		quality:       QualityLost,
		drift:         0.0,
	}
}

// ProcessSyncResponse processes a time response with drift compensation.
// t1 is client send, t2 server receive, t3 server send, t4 client receive,
// all in microseconds.
func (cs *ClockSync) ProcessSyncResponse(t1, t2, t3, t4 int64) {
	rtt, measuredOffset := calculateOffset(t1, t2, t3, t4)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.rtt = rtt
	cs.rawOffset = measuredOffset
	cs.lastSync = time.Now()

	// Discard samples with high RTT (network congestion)
	if rtt > 100000 { // 100ms
		log.Printf("Discarding sync sample: high RTT %dμs", rtt)
		return
	}

	// First sync: initialize offset, no drift yet
	if cs.sampleCount == 0 {
		cs.offset = measuredOffset
		cs.lastSyncMicros = t4
		cs.sampleCount++
		cs.quality = QualityGood
		log.Printf("Initial sync: offset=%dμs, rtt=%dμs", cs.offset, rtt)
		return
	}

	// Second sync: calculate initial drift
	if cs.sampleCount == 1 {
		dt := float64(t4 - cs.lastSyncMicros)
		if dt > 0 {
			// Drift = change in offset over time
			cs.drift = float64(measuredOffset-cs.offset) / dt
		}
		cs.offset = measuredOffset
		cs.lastSyncMicros = t4
		cs.sampleCount++
		cs.quality = QualityGood
		return
	}

	// Subsequent syncs: predict offset using drift, then update both
	dt := float64(t4 - cs.lastSyncMicros)
	if dt <= 0 {
		log.Printf("Discarding sync sample: non-monotonic time")
		return
	}

	// Predict what the offset should be based on drift
	predictedOffset := cs.offset + int64(cs.drift*dt)

	// Residual = how much our prediction was off
	residual := measuredOffset - predictedOffset

	// Reject outliers (residual > 50ms suggests network issue or clock jump)
	if residual > 50000 || residual < -50000 {
		log.Printf("Discarding sync sample: large residual %dμs (possible clock jump)", residual)
		return
	}

	// Fixed-gain Kalman update: move toward the measurement by the gain
	cs.offset = predictedOffset + int64(cs.smoothingRate*float64(residual))
	cs.drift = cs.drift + cs.smoothingRate*(float64(residual)/dt)

	cs.lastSyncMicros = t4
	cs.sampleCount++

	if rtt < 50000 { // <50ms
		cs.quality = QualityGood
	} else {
		cs.quality = QualityDegraded
	}
}

// calculateOffset computes RTT and clock offset
func calculateOffset(t1, t2, t3, t4 int64) (rtt, offset int64) {
	// Round-trip time
	rtt = (t4 - t1) - (t3 - t2)

	// Estimated offset (positive = server ahead of client)
	offset = ((t2 - t1) + (t3 - t4)) / 2

	return
}

// GetOffset returns the current offset
func (cs *ClockSync) GetOffset() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.offset
}

// GetStats returns sync statistics
func (cs *ClockSync) GetStats() (offset, rtt int64, quality Quality) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.offset, cs.rtt, cs.quality
}

// Synced reports whether at least one sample has been accepted.
func (cs *ClockSync) Synced() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.sampleCount > 0
}

// CheckQuality updates quality based on time since last sync
func (cs *ClockSync) CheckQuality() Quality {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if time.Since(cs.lastSync) > 5*time.Second {
		cs.quality = QualityLost
	}

	return cs.quality
}

// ServerNow returns the current time in the server's reference frame,
// accounting for both offset and drift. Before the first sync it returns
// raw client time.
func (cs *ClockSync) ServerNow() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	clientNow := ClientMicros()
	if cs.sampleCount == 0 {
		return clientNow
	}

	// server_time = client_time + offset + drift * (client_time - last_sync)
	dt := clientNow - cs.lastSyncMicros
	return clientNow + cs.offset + int64(cs.drift*float64(dt))
}

// ServerToLocalTime converts a server timestamp to local wall clock time.
func (cs *ClockSync) ServerToLocalTime(serverTime int64) time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	// If we haven't synced yet, assume server time = client time
	if cs.sampleCount == 0 {
		return time.Unix(0, serverTime*1000)
	}

	// Inverse of the forward transform:
	// server_time = client_time + offset + drift * (client_time - last_sync)
	// Solving: client_time = (server_time - offset + drift * last_sync) / (1 + drift)
	numerator := float64(serverTime) - float64(cs.offset) + cs.drift*float64(cs.lastSyncMicros)
	denominator := 1.0 + cs.drift
	clientMicros := int64(numerator / denominator)

	return time.Unix(0, clientMicros*1000)
}

// ClientMicros returns raw client Unix epoch time in microseconds.
// This is only for timestamping sync exchanges; use ServerNow for
// stream timestamps.
func ClientMicros() int64 {
	return time.Now().UnixMicro()
}
