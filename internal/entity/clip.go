package entity

type ClipResult struct {
	MaxConfidence float64    `json:"max_confidence"`
	IsFall        bool       `json:"is_fall"`
	LastKeypoints *Keypoints `json:"last_keypoints,omitempty"`
}
