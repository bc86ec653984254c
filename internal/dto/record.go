package dto

import (
	"github.com/noah-isme/educore-sync/internal/models"
)

// ImagePayload is an image attached inline to a JSON write. Data is base64 encoded on the wire.
type ImagePayload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Upload converts the payload into an upload request, or nil when empty.
func (p *ImagePayload) Upload() *models.ImageUpload {
	if p == nil || len(p.Data) == 0 {
		return nil
	}
	return &models.ImageUpload{Filename: p.Filename, ContentType: p.ContentType, Data: p.Data}
}

// CreateRecordRequest is the body of a record creation.
type CreateRecordRequest struct {
	ID       string        `json:"id,omitempty"`
	Category string        `json:"category,omitempty"`
	Fields   models.Fields `json:"fields"`
	Image    *ImagePayload `json:"image,omitempty"`
}

// UpdateRecordRequest carries the fields to merge into a record.
type UpdateRecordRequest struct {
	Fields models.Fields `json:"fields"`
	Image  *ImagePayload `json:"image,omitempty"`
}

// MoveCategoryRequest moves a record to another partition.
type MoveCategoryRequest struct {
	Category string `json:"category"`
}

// RosterResponse is a teacher's class and its students.
type RosterResponse struct {
	Class    string           `json:"class"`
	Students []*models.Record `json:"students"`
}

// ReadStatusResponse reports one viewer/record read flag.
type ReadStatusResponse struct {
	RecordID string `json:"record_id"`
	Read     bool   `json:"read"`
}

// UnreadResponse counts unread records in a collection or one of its partitions.
type UnreadResponse struct {
	Collection string `json:"collection"`
	Category   string `json:"category,omitempty"`
	Unread     int    `json:"unread"`
	Total      int    `json:"total"`
}
