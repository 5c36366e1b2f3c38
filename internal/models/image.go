package models

// UploadedImage describes an image stored by the upload endpoint
type UploadedImage struct {
	Filename    string `json:"filename"`
	Path        string `json:"-"`
	URL         string `json:"imageUrl"`
	ContentType string `json:"-"`
	Size        int64  `json:"-"`
}
