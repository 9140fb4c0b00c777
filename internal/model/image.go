package model

import (
	"time"

	"github.com/google/uuid"
)

// UploadRequest is one parsed upload. It is not modified once built.
type UploadRequest struct {
	Filename   string // original uploaded filename
	Data       []byte // raw container bytes
	Path       string // destination relative to the images base directory
	Thumbnails bool   // also produce the configured thumbnail classes
	Format     string // optional explicit output format: jpeg, webp or png
}

// Conversion describes the variants written for one upload. It is returned
// to the caller, stored as history and published as an event.
type Conversion struct {
	ID          uuid.UUID `json:"id"`
	LogicalName string    `json:"logical_name"`
	ImageName   string    `json:"image_name"`           // primary variant file name
	Path        string    `json:"path"`                 // destination relative path
	Format      string    `json:"format"`               // primary output format
	Thumbnails  []string  `json:"thumbnails,omitempty"` // "{class dir}/{file}" per thumbnail
	CreatedAt   time.Time `json:"created_at"`
}
