package catalog

import "time"

// Availability is Movie's minimum_availability enum.
type Availability string

const (
	AvailabilityAnnounced  Availability = "announced"
	AvailabilityInCinemas  Availability = "in-cinemas"
	AvailabilityReleased   Availability = "released"
	AvailabilityPreDB      Availability = "predb"
)

// Movie is the canonical catalog record (spec.md §3).
type Movie struct {
	ID                  int64
	ExternalKey         string
	Title               string
	Year                int
	Overview            string
	RuntimeMinutes      int
	Monitored           bool
	QualityProfileID    int64
	MinimumAvailability Availability
	PathRoot            string
	HasFile             bool
	AddedAt             time.Time
	UpdatedAt           time.Time
}

// MovieFile is a materialized file on disk (spec.md §3).
type MovieFile struct {
	ID           int64
	MovieID      int64
	RelativePath string
	SizeBytes    int64
	Quality      string
	Score        int
	SceneGroup   string
	Source       string
	MediaInfo    MediaInfo
	IsCurrent    bool
	ImportedAt   time.Time
}

// MediaInfo holds probed technical metadata for a MovieFile.
type MediaInfo struct {
	Container     string `json:"container"`
	VideoCodec    string `json:"videoCodec"`
	Resolution    string `json:"resolution"`
	AudioCodec    string `json:"audioCodec"`
	AudioChannels int    `json:"audioChannels"`
	RuntimeSecs   int    `json:"runtimeSecs"`
}

// QualityProfile is the ordered set of allowed qualities with a cutoff
// (spec.md §3).
type QualityProfile struct {
	ID                     int64
	Name                   string
	AllowedQualities       []string // ordered worst-to-best
	Cutoff                 string
	UpgradeAllowed         bool
	MinimumFormatScore     int
	SearchUpgradesAtCutoff bool
}

// IndexOf returns the rank of quality within the profile's ordering, or
// -1 if the profile does not allow it.
func (p *QualityProfile) IndexOf(quality string) int {
	for i, q := range p.AllowedQualities {
		if q == quality {
			return i
		}
	}
	return -1
}

// IsAllowed reports whether quality is a member of the profile's allowed
// set.
func (p *QualityProfile) IsAllowed(quality string) bool {
	return p.IndexOf(quality) >= 0
}

// AtCutoff reports whether quality has reached or passed the profile's
// cutoff quality.
func (p *QualityProfile) AtCutoff(quality string) bool {
	cur := p.IndexOf(quality)
	cutoff := p.IndexOf(p.Cutoff)
	if cur < 0 || cutoff < 0 {
		return false
	}
	return cur >= cutoff
}

// JobStatus is the lifecycle state of a Job (spec.md §3).
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobLeased    JobStatus = "leased"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobDead      JobStatus = "dead"
)

// JobKind enumerates the queue's durable work item types.
type JobKind string

const (
	JobKindSearch   JobKind = "search"
	JobKindGrab     JobKind = "grab"
	JobKindMonitor  JobKind = "monitor"
	JobKindImport   JobKind = "import"
	JobKindRefresh  JobKind = "refresh"
	JobKindListSync JobKind = "list_sync"
)

// QueueItemStatus is the live view of a handed-off download (spec.md §3).
type QueueItemStatus string

const (
	QueueItemQueued      QueueItemStatus = "queued"
	QueueItemDownloading QueueItemStatus = "downloading"
	QueueItemPaused      QueueItemStatus = "paused"
	QueueItemCompleted   QueueItemStatus = "completed"
	QueueItemFailed      QueueItemStatus = "failed"
)

// QueueItem is the live view of a release handed to the download daemon.
type QueueItem struct {
	ID               int64
	MovieID          int64
	DownloadClientID int64
	DownloadID       string
	Status           QueueItemStatus
	ProgressPct      float64
	SizeTotal        int64
	SizeDownloaded   int64
	ETASeconds       int64
	OutputPath       string
	ReleaseTitle     string
	ReleaseScore     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HistoryEventKind enumerates append-only audit event kinds.
type HistoryEventKind string

const (
	HistoryGrabbed        HistoryEventKind = "grabbed"
	HistoryDownloadFailed HistoryEventKind = "download_failed"
	HistoryImported       HistoryEventKind = "imported"
	HistoryUpgraded       HistoryEventKind = "upgraded"
	HistoryDeleted        HistoryEventKind = "deleted"
	HistoryListSync       HistoryEventKind = "list_sync"
	HistoryImportFailed   HistoryEventKind = "import_failed"
)

// HistoryEvent is an append-only audit row (spec.md §3).
type HistoryEvent struct {
	ID         int64
	MovieID    *int64
	EventKind  HistoryEventKind
	Data       map[string]any
	OccurredAt time.Time
}

// ReputationTier buckets a SceneGroupReputation score.
type ReputationTier string

const (
	TierPremium  ReputationTier = "premium"
	TierExcellent ReputationTier = "excellent"
	TierGood     ReputationTier = "good"
	TierNeutral  ReputationTier = "neutral"
	TierPoor     ReputationTier = "poor"
)

// SceneGroupReputation is the read-optimized reputation record (spec.md §3).
type SceneGroupReputation struct {
	Name            string
	ReputationScore int
	Tier            ReputationTier
	Confidence      float64
	SampleCount     int
	UpdatedAt       time.Time
}

// ListSyncDecision enumerates conflict-resolution outcomes for list-sync
// entries.
type ListSyncDecision string

const (
	DecisionAdd          ListSyncDecision = "add"
	DecisionIgnore       ListSyncDecision = "ignore"
	DecisionKeepExisting ListSyncDecision = "keep_existing"
	DecisionUseNew       ListSyncDecision = "use_new"
	DecisionConflict     ListSyncDecision = "conflict"
)

// ListSyncRun records one pull of a curated list.
type ListSyncRun struct {
	ID                   int64
	ListName             string
	StartedAt            time.Time
	FinishedAt           *time.Time
	PagesProcessed       int
	EntriesSeen          int
	APIRequestCount      int
	CacheHits            int
	MemoryHighWaterBytes int64
	Status               string
}

// ListSyncHistoryEntry records one conflict decision within a run.
type ListSyncHistoryEntry struct {
	ID             int64
	RunID          int64
	ExternalKey    string
	Decision       ListSyncDecision
	BeforeSnapshot map[string]any
	AfterSnapshot  map[string]any
	OccurredAt     time.Time
}
