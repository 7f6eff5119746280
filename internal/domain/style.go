package domain

import "time"

// GenerationStyle is a named preset whose template is sent verbatim to the provider.
type GenerationStyle struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	PromptTemplate string    `json:"prompt_template"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty"`
	SortOrder      int       `json:"sort_order"`
	IsActive       bool      `json:"is_active"`
	IsPremium      bool      `json:"is_premium"`
	CreatedAt      time.Time `json:"created_at"`
}

// UploadedImage is a stored source photo.
type UploadedImage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"storage_path"`
	FileSize    int64     `json:"file_size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	MIMEType    string    `json:"mime_type"`
	IsTemp      bool      `json:"is_temp"`
	CreatedAt   time.Time `json:"created_at"`
}

// SourceImage is the handle passed to providers: already validated bytes
// plus the metadata needed to label them.
type SourceImage struct {
	Name     string
	MIMEType string
	Data     []byte
}
