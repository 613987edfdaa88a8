// Package event models the storage-event notifications that trigger triage.
package event

import (
	"errors"
	"fmt"
	"net/url"
)

// Notification is a storage-event notification carrying one or more object records.
// The shape follows S3 event notifications.
type Notification struct {
	Records []Record `json:"Records"`
}

// Record is a single object event.
type Record struct {
	EventName string   `json:"eventName,omitempty"`
	EventTime string   `json:"eventTime,omitempty"`
	S3        S3Entity `json:"s3"`
}

// S3Entity identifies the bucket and object of a Record.
type S3Entity struct {
	Bucket Bucket `json:"bucket"`
	Object Object `json:"object"`
}

// Bucket names the bucket the object lives in.
type Bucket struct {
	Name string `json:"name"`
}

// Object identifies the object. Key is URL-encoded, as delivered by S3.
type Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size,omitempty"`
	ETag string `json:"eTag,omitempty"`
}

// ObjectRef is a decoded bucket/key pair.
type ObjectRef struct {
	Bucket string
	Key    string
}

// Objects returns the decoded object references of n, in record order.
func (n *Notification) Objects() ([]ObjectRef, error) {
	if n == nil || len(n.Records) == 0 {
		return nil, errors.New("notification has no records")
	}
	refs := make([]ObjectRef, 0, len(n.Records))
	for i, r := range n.Records {
		if r.S3.Bucket.Name == "" {
			return nil, fmt.Errorf("record %d: bucket name is required", i)
		}
		if r.S3.Object.Key == "" {
			return nil, fmt.Errorf("record %d: object key is required", i)
		}
		refs = append(refs, ObjectRef{Bucket: r.S3.Bucket.Name, Key: DecodeKey(r.S3.Object.Key)})
	}
	return refs, nil
}

// DecodeKey undoes the form encoding S3 applies to keys in event payloads
// ("my+file%21.txt" -> "my file!.txt"). Keys that fail to decode are returned as-is.
func DecodeKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}
