package calibration

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/dualarm/internal/homography"
	"github.com/banshee-data/dualarm/internal/kinematics"
	"github.com/banshee-data/dualarm/internal/monitoring"
	"github.com/banshee-data/dualarm/internal/timeutil"
)

var logf = monitoring.Prefixed("[calibration] ")

// ErrStoreClosed is returned by writes after Close.
var ErrStoreClosed = errors.New("calibration store closed")

// Camera is the camera half of a snapshot.
type Camera struct {
	Pixel       []homography.Point      `json:"pixel"`
	Robot       []homography.Point      `json:"robot"`
	Homography  homography.Matrix       `json:"homography"`
	Quality     homography.Quality      `json:"quality"`
	CentroidMap *homography.CentroidMap `json:"centroid_map,omitempty"`
}

// Snapshot is one published calibration state. Snapshots are immutable once
// published; readers may hold them for as long as they like.
type Snapshot struct {
	ID          string      `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	Block       *Block      `json:"geometry,omitempty"`
	Camera      *Camera     `json:"camera,omitempty"`
	Diagnostics Diagnostics `json:"diagnostics"`

	// Geometry is the full computed geometry. It is nil for snapshots
	// restored from persistence, which only keep the block.
	Geometry *Geometry `json:"-"`
}

// StoreOptions configure a Store.
type StoreOptions struct {
	Expectations Expectations
	Thresholds   homography.Thresholds
	Clock        timeutil.Clock
}

// Store publishes calibration snapshots. Reads are lock-free; writers are
// serialised and a failed recompute leaves the previous snapshot live.
type Store struct {
	models map[kinematics.Arm]*kinematics.ArmModel
	opts   StoreOptions

	current atomic.Pointer[Snapshot]

	writeMu sync.Mutex

	subscriberMu sync.Mutex
	subscribers  map[string]chan *Snapshot
	closing      bool
}

// NewStore creates an empty store for the given arm models.
func NewStore(models map[kinematics.Arm]*kinematics.ArmModel, opts StoreOptions) *Store {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Thresholds == (homography.Thresholds{}) {
		opts.Thresholds = homography.ThresholdsFor(homography.DefaultGoodRMSEMm)
	}
	return &Store{
		models:      models,
		opts:        opts,
		subscribers: make(map[string]chan *Snapshot),
	}
}

// Current returns the live snapshot, or nil before the first publish.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Recalibrate recomputes the geometry from poses and publishes it together
// with the current camera calibration.
func (s *Store) Recalibrate(poses CalibrationPoses) (*Snapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosing() {
		return nil, ErrStoreClosed
	}

	g, err := ComputeGeometry(s.models, poses)
	if err != nil {
		logf("recompute aborted, keeping snapshot %s: %v", s.currentID(), err)
		return nil, err
	}

	next := &Snapshot{Geometry: g, Block: g.Block()}
	if prev := s.Current(); prev != nil {
		next.Camera = prev.Camera
	}
	return s.publish(next), nil
}

// RecalibrateCamera solves a new homography from four correspondences and
// publishes it together with the current geometry.
func (s *Store) RecalibrateCamera(pixel, robot []homography.Point) (*Snapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosing() {
		return nil, ErrStoreClosed
	}

	cam, err := s.solveCamera(pixel, robot)
	if err != nil {
		logf("camera calibration rejected, keeping snapshot %s: %v", s.currentID(), err)
		return nil, err
	}

	next := &Snapshot{Camera: cam}
	if prev := s.Current(); prev != nil {
		next.Geometry = prev.Geometry
		next.Block = prev.Block
	}
	return s.publish(next), nil
}

func (s *Store) solveCamera(pixel, robot []homography.Point) (*Camera, error) {
	h, err := homography.Compute(pixel, robot)
	if err != nil {
		return nil, err
	}
	if !h.IsValid() {
		return nil, fmt.Errorf("%w: |det| = %.3g", ErrRejectedHomography, h.Det())
	}
	cam := &Camera{
		Pixel:      append([]homography.Point(nil), pixel...),
		Robot:      append([]homography.Point(nil), robot...),
		Homography: h,
		Quality:    homography.Assess(h, pixel, robot, s.opts.Thresholds),
	}
	if cm, err := homography.ComputeCentroidMap(pixel, robot); err == nil {
		cam.CentroidMap = &cm
	} else {
		logf("centroid fallback unavailable: %v", err)
	}
	return cam, nil
}

// Restore republishes a snapshot loaded from persistence, keeping its ID
// and timestamp.
func (s *Store) Restore(snap *Snapshot) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cp := *snap
	cp.Diagnostics = s.diagnose(&cp)
	s.current.Store(&cp)
	logf("restored snapshot %s from %s", cp.ID, cp.CreatedAt.Format(time.RFC3339))
	s.notify(&cp)
}

func (s *Store) diagnose(snap *Snapshot) Diagnostics {
	d := Diagnose(snap.Geometry, s.models, s.opts.Expectations)
	if snap.Camera != nil {
		d.AddCameraQuality(snap.Camera.Quality)
	}
	return d
}

// publish stamps, swaps and fans out next. Caller holds writeMu.
func (s *Store) publish(next *Snapshot) *Snapshot {
	next.ID = uuid.New().String()
	next.CreatedAt = s.opts.Clock.Now().UTC()
	next.Diagnostics = s.diagnose(next)

	s.current.Store(next)
	logf("published snapshot %s (%d issues)", next.ID, len(next.Diagnostics.Issues))
	for _, is := range next.Diagnostics.Issues {
		logf("%s %s: %s", is.Severity, is.Code, is.Message)
	}
	s.notify(next)
	return next
}

// Subscribe returns a channel that receives every published snapshot. The
// channel holds one pending snapshot; a slow reader only sees the newest.
func (s *Store) Subscribe() (string, <-chan *Snapshot) {
	id := uuid.New().String()
	ch := make(chan *Snapshot, 1)

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscription.
func (s *Store) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Close closes every subscription; later writes fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing {
		return nil
	}
	s.closing = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return nil
}

func (s *Store) isClosing() bool {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	return s.closing
}

func (s *Store) notify(snap *Snapshot) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the stale pending snapshot
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (s *Store) currentID() string {
	if cur := s.Current(); cur != nil {
		return cur.ID
	}
	return "<none>"
}
