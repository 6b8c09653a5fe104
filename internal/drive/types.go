package drive

// Item is one child entry returned by the provider listing API.
type Item struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	WebViewLink    string `json:"webViewLink,omitempty"`
	WebContentLink string `json:"webContentLink,omitempty"`
	ThumbnailLink  string `json:"thumbnailLink,omitempty"`
	Size           string `json:"size,omitempty"`
	ModifiedTime   string `json:"modifiedTime,omitempty"`
}

// listResponse is the provider's listing envelope.
type listResponse struct {
	Files []Item `json:"files"`
}

// apiError is the provider's error envelope.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}
