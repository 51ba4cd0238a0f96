package types

import (
	"encoding/json"
	"time"
)

// Report is one generation run for a period and kind.
type Report struct {
	ID         int64        `json:"id"`
	ReportDate time.Time    `json:"report_date"`
	Kind       ReportKind   `json:"kind"`
	Status     ReportStatus `json:"status"`
	TotalUsers int          `json:"total_users"`
	StartTime  *time.Time   `json:"start_time,omitempty"`
	EndTime    *time.Time   `json:"end_time,omitempty"`
	Error      *string      `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Period returns the reporting window of the report.
func (r *Report) Period() Period {
	return NewPeriod(r.ReportDate, r.Kind)
}

// AudienceMember is a frozen snapshot row. Pages are sliced from the
// snapshot ordered by UserID so membership stays stable for the whole run.
type AudienceMember struct {
	ReportID  int64  `json:"report_id"`
	UserID    int64  `json:"user_id"`
	UserUUID  string `json:"user_uuid"`
	UserName  string `json:"user_name"`
	TotalSets int    `json:"total_sets"`
}

// PageLog records the lifecycle of one dispatched page.
type PageLog struct {
	ID             int64      `json:"id"`
	ReportID       int64      `json:"report_id"`
	Offset         int        `json:"offset"`
	PageSize       int        `json:"page_size"`
	Status         PageStatus `json:"status"`
	TotalUsers     int        `json:"total_users"`
	CurrentOffset  int        `json:"current_offset"`
	TimeTakenMs    *int64     `json:"time_taken_ms,omitempty"`
	QueueMessageID *string    `json:"queue_message_id,omitempty"`
	Error          *string    `json:"error,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UserArtifact is the per-user output of a report and its delivery state.
type UserArtifact struct {
	ID               int64           `json:"id"`
	UUID             string          `json:"uuid"`
	UserID           int64           `json:"user_id"`
	UserUUID         string          `json:"user_uuid,omitempty"`
	ReportID         int64           `json:"report_id"`
	PeriodKey        string          `json:"period_key"`
	Status           ArtifactStatus  `json:"status"`
	DataURL          string          `json:"data_url,omitempty"`
	TimeTakenMs      int64           `json:"time_taken_ms"`
	Error            *string         `json:"error,omitempty"`
	EmailResponse    json.RawMessage `json:"email_response,omitempty"`
	EmailTimeTakenMs *int64          `json:"email_time_taken_ms,omitempty"`
	EmailSentAt      *time.Time      `json:"email_sent_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ArtifactOutcome is the result of generating one member's recap, written
// through the idempotent artifact upsert.
type ArtifactOutcome struct {
	UserID      int64
	ReportID    int64
	PeriodKey   string
	Status      ArtifactStatus
	DataURL     string
	TimeTakenMs int64
	Error       string
}

// EmailOutcome records the result of one email send on an artifact.
type EmailOutcome struct {
	Status      ArtifactStatus
	Response    json.RawMessage
	TimeTakenMs int64
	Error       string
	SentAt      *time.Time
}

// PendingEmail is an artifact awaiting delivery joined with its recipient.
type PendingEmail struct {
	ArtifactID   int64
	ArtifactUUID string
	UserID       int64
	UserUUID     string
	DataURL      string
}

// StatusCount is one bucket of a status histogram.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// GlobalStats are platform-wide totals for a period, loaded once per page.
type GlobalStats struct {
	TotalUsers        int64 `json:"totalUsers"`
	TotalDistinctSets int64 `json:"totalDistinctSets"`
	TotalPieces       int64 `json:"totalPieces"`
	TotalSets         int64 `json:"totalSets"`
	TotalMedia        int64 `json:"totalMedia"`
}

// UserProfile is the public identity embedded in a recap.
type UserProfile struct {
	UUID      string    `json:"uuid"`
	Name      *string   `json:"name"`
	UserName  string    `json:"userName"`
	Avatar    *string   `json:"avatar"`
	IsBuilder bool      `json:"isBuilder"`
	TimeZone  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecapDocument is the JSON body stored for each user.
type RecapDocument struct {
	ReportDate string       `json:"reportDate"`
	User       UserProfile  `json:"user"`
	Dates      RecapDates   `json:"dates"`
	Stories    RecapStories `json:"stories"`
}

type RecapDates struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type RecapStories struct {
	Global      GlobalStory     `json:"global"`
	Sets        SetsStory       `json:"sets"`
	Minifigs    MinifigsStory   `json:"minifigs"`
	Collections CollectionStory `json:"collections"`
	Wishlist    WishlistStory   `json:"wishlist"`
	Media       MediaStory      `json:"media"`
	Themes      ThemesStory     `json:"themes"`
}

type GlobalStory struct {
	TotalPiecesBuilt int64   `json:"totalPiecesBuilt"`
	TotalSetsBuilt   int64   `json:"totalSetsBuilt"`
	UserPercentile   float64 `json:"userPercentile"`
}

type SetsStory struct {
	TotalSetsAdded  int      `json:"totalSetsAdded"`
	TotalSetsBuilt  int      `json:"totalSetsBuilt"`
	TotalPieceCount int64    `json:"totalPieceCount"`
	TotalWeight     *float64 `json:"totalWeight"`
}

type MinifigsStory struct {
	TotalMinifigsAdded int `json:"totalMinifigsAdded"`
	TotalQuantity      int `json:"totalQuantity"`
}

type CollectionStory struct {
	TotalCollectionsCreated int          `json:"totalCollectionsCreated"`
	CollectionTypes         []NamedCount `json:"collectionTypes"`
}

type WishlistStory struct {
	TotalAdded int `json:"totalAdded"`
}

type MediaStory struct {
	GlobalTotalMediaUploaded int64 `json:"globalTotalMediaUploaded"`
	TotalMedia               int   `json:"totalMedia"`
}

type ThemesStory struct {
	TotalThemes int          `json:"totalThemes"`
	TopThemes   []NamedCount `json:"topThemes"`
}

// NamedCount is a labelled counter used by several stories.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// UserStats are the raw per-user aggregates a RecapDocument is assembled from.
type UserStats struct {
	SetsAdded          int
	SetsBuilt          int
	PieceCount         int64
	MinifigsAdded      int
	MinifigQuantity    int
	CollectionsCreated int
	CollectionTypes    []NamedCount
	WishlistAdded      int
	MediaUploaded      int
	TotalThemes        int
	TopThemes          []NamedCount
}
