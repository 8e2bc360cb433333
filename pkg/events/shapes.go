package events

// Wire shapes for the record variants the normalizer understands. Unknown
// fields are ignored; the discriminator fields decide which variant applies.

// s3Record is the direct S3 notification record, the shape S3-compatible
// object stores place inside a Records array.
type s3Record struct {
	EventVersion string   `json:"eventVersion"`
	EventSource  string   `json:"eventSource"`
	Region       string   `json:"awsRegion"`
	EventTime    string   `json:"eventTime"`
	EventName    string   `json:"eventName"`
	S3           s3Entity `json:"s3"`
}

type s3Entity struct {
	Bucket s3Bucket `json:"bucket"`
	Object s3Object `json:"object"`
}

type s3Bucket struct {
	Name string `json:"name"`
	Arn  string `json:"arn"`
}

type s3Object struct {
	Key       string `json:"key"`
	Size      int64  `json:"size"`
	Sequencer string `json:"sequencer"`
}

// bridgeRecord is the EventBridge/CloudWatch wrapper: either a native
// object-storage detail (detail.bucket/detail.object) or a CloudTrail API
// call detail (detail.requestParameters).
type bridgeRecord struct {
	DetailType string       `json:"detail-type"`
	Source     string       `json:"source"`
	Time       string       `json:"time"`
	Region     string       `json:"region"`
	Detail     bridgeDetail `json:"detail"`
}

type bridgeDetail struct {
	EventName         string       `json:"eventName"`
	Bucket            s3Bucket     `json:"bucket"`
	Object            s3Object     `json:"object"`
	RequestParameters bridgeParams `json:"requestParameters"`
}

type bridgeParams struct {
	BucketName string `json:"bucketName"`
	Key        string `json:"key"`
}
