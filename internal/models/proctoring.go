package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ViolationType string

const (
	ViolationNoFace        ViolationType = "no_face"
	ViolationMultipleFaces ViolationType = "multiple_faces"
	ViolationMobileDevice  ViolationType = "mobile_device"
	ViolationLookingAway   ViolationType = "looking_away"
)

// FaceVerification stores one proctoring heartbeat or violation event.
type FaceVerification struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SessionID uuid.UUID `json:"session_id" gorm:"type:uuid;not null;index"`

	CapturedAt time.Time `json:"captured_at" gorm:"not null;index"`

	// Raw detector output: face_count, confidence, bounding boxes, device hints.
	DetectionMetrics datatypes.JSON `json:"detection_metrics" gorm:"type:jsonb"`

	IsViolation   bool           `json:"is_violation" gorm:"not null;default:false;index"`
	ViolationType *ViolationType `json:"violation_type" gorm:"size:20"`
	Evidence      *string        `json:"evidence" gorm:"size:500"`
	Metadata      datatypes.JSON `json:"metadata" gorm:"type:jsonb"`

	// Relations
	Session SurveySession `json:"-" gorm:"foreignKey:SessionID"`
}

func (FaceVerification) TableName() string {
	return "face_verifications"
}

type ReviewDecision string

const (
	ReviewApproved ReviewDecision = "approved"
	ReviewRejected ReviewDecision = "rejected"
	ReviewFlagged  ReviewDecision = "flagged"
)

// ProctorReview holds the single moderator adjudication for a session.
// Repeated reviews overwrite the previous decision.
type ProctorReview struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SessionID uuid.UUID `json:"session_id" gorm:"type:uuid;not null;uniqueIndex"`

	Decision   ReviewDecision `json:"decision" gorm:"not null;size:10" validate:"required,oneof=approved rejected flagged"`
	Notes      string         `json:"notes" gorm:"type:text"`
	ReviewerID string         `json:"reviewer_id" gorm:"not null;size:255"`
	DecidedAt  time.Time      `json:"decided_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Session SurveySession `json:"-" gorm:"foreignKey:SessionID"`
}

func (ProctorReview) TableName() string {
	return "proctor_reviews"
}
