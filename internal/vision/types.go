package vision

import "github.com/bdougie/framesort/internal/models"

// analyzeResponse is the subset of the Computer Vision "analyze" answer we use.
// Error answers carry code/message and no tags.
type analyzeResponse struct {
	Tags        []tag        `json:"tags"`
	Description *description `json:"description"`
	RequestID   string       `json:"requestId"`

	Code    string `json:"code"`
	Message string `json:"message"`
}

type tag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type description struct {
	Tags     []string  `json:"tags"`
	Captions []caption `json:"captions"`
}

type caption struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (r *analyzeResponse) analysis() *models.Analysis {
	a := &models.Analysis{}
	if r.Tags == nil {
		return a
	}

	a.Tags = make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		a.Tags = append(a.Tags, t.Name)
	}

	if r.Description != nil && len(r.Description.Captions) > 0 {
		top := r.Description.Captions[0]
		a.Caption = top.Text
		// A score outside [0,1] is treated as missing.
		if conf := top.Confidence; conf >= 0 && conf <= 1 {
			a.Confidence = &conf
		}
	}
	return a
}
