package docstore

import "time"

type NoteUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Note struct {
	ID      int64     `json:"id"`
	Note    string    `json:"note"`
	Created time.Time `json:"created"`
	User    NoteUser  `json:"user"`
}

type CustomFieldValue struct {
	Field int64  `json:"field"`
	Value string `json:"value"`
}

type CustomField struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

type Document struct {
	ID           int64              `json:"id"`
	Title        string             `json:"title,omitempty"`
	Created      string             `json:"created,omitempty"`
	Modified     string             `json:"modified,omitempty"`
	Added        string             `json:"added,omitempty"`
	PageCount    int                `json:"page_count,omitempty"`
	MimeType     string             `json:"mime_type,omitempty"`
	Notes        []Note             `json:"notes,omitempty"`
	CustomFields []CustomFieldValue `json:"custom_fields,omitempty"`
}

type DocumentPage struct {
	Count    int        `json:"count"`
	Next     *string    `json:"next"`
	Previous *string    `json:"previous"`
	Results  []Document `json:"results"`
}

type CustomFieldPage struct {
	Count    int           `json:"count"`
	Next     *string       `json:"next"`
	Previous *string       `json:"previous"`
	Results  []CustomField `json:"results"`
}
