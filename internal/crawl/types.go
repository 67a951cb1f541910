// Package crawl defines core types shared across subsystems.
package crawl

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Method is the HTTP method carried by a Request.
type Method string

// Supported request methods.
const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

// Metadata keys understood by the engine and the feed spider.
const (
	MetaSource          = "source"
	MetaIsFeed          = "is_feed"
	MetaFetchFull       = "fetch_full"
	MetaOriginalItemURL = "original_item_url"
)

// Request captures everything needed to fetch one URL. Values are treated as
// immutable once handed to the engine.
type Request struct {
	URL       string
	Method    Method
	Headers   map[string]string
	Params    map[string]string
	Body      []byte
	UseRender bool
	Metadata  map[string]any
}

// MetaBool reads a boolean routing hint from the request metadata.
func (r Request) MetaBool(key string) bool {
	v, ok := r.Metadata[key].(bool)
	return ok && v
}

// MetaString reads a string routing hint from the request metadata.
func (r Request) MetaString(key string) string {
	v, _ := r.Metadata[key].(string)
	return v
}

// Response is the result of one fetch or render.
type Response struct {
	URL      string
	Status   int
	Body     []byte
	Headers  map[string]string
	Request  Request
	Elapsed  time.Duration
	Metadata map[string]any
}

// Text decodes the body as UTF-8, dropping invalid byte sequences.
func (r *Response) Text() string {
	if utf8.Valid(r.Body) {
		return string(r.Body)
	}
	return strings.ToValidUTF8(string(r.Body), "")
}

// Item is the standardized unit of extracted content. URL is the dedup key
// for persistence.
type Item struct {
	URL         string
	Title       string
	Body        string
	Source      string
	Author      string
	PublishedAt *time.Time
	Metadata    map[string]any
}
