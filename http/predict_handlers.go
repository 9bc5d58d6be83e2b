package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"seedcar/ml"
	"seedcar/predictor"
)

type wheatResponse struct {
	Prediction         int     `json:"prediction"`
	PredictedWheatType int     `json:"predicted_wheat_type"`
	Variety            string  `json:"variety"`
	Confidence         float64 `json:"confidence"`
	Fallback           bool    `json:"fallback"`
	Note               string  `json:"note,omitempty"`
	Model              string  `json:"model"`
	Version            string  `json:"version"`
	RequestID          string  `json:"request_id,omitempty"`
}

type carResponse struct {
	Prediction float64 `json:"prediction"`
	PriceLakhs float64 `json:"price_lakhs"`
	Fallback   bool    `json:"fallback"`
	Note       string  `json:"note,omitempty"`
	Model      string  `json:"model"`
	Version    string  `json:"version"`
	RequestID  string  `json:"request_id,omitempty"`
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

var (
	wheatMarkers = []string{"area", "perimeter", "compactness", "length", "width", "asymmetry_coeff", "groove"}
	carMarkers   = []string{"year", "kilometers_driven", "brand_model", "location"}
)

func (h *handlers) handleWheatProcess(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(r)
	if err != nil {
		h.writeRequestError(w, err)
		return
	}
	h.serve(w, r, ml.KindWheat, fields)
}

func (h *handlers) handleCarPredict(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(r)
	if err != nil {
		h.writeRequestError(w, err)
		return
	}
	h.serve(w, r, ml.KindCar, fields)
}

// handlePredict 通用预测入口，按model参数或字段集合选择模型
func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(r)
	if err != nil {
		h.writeRequestError(w, err)
		return
	}
	kind, err := detectKind(r, fields)
	if err != nil {
		h.writeRequestError(w, err)
		return
	}
	h.serve(w, r, kind, fields)
}

func (h *handlers) serve(w http.ResponseWriter, r *http.Request, kind ml.Kind, fields ml.Fields) {
	var build func(ml.Fields) (ml.FeatureVector, error)
	switch kind {
	case ml.KindWheat:
		build = ml.BuildWheatFeatures
	case ml.KindCar:
		build = ml.BuildCarFeatures
	}

	fv, err := build(fields)
	if err != nil {
		var verr *ml.ValidationError
		if errors.As(err, &verr) {
			h.deps.Metrics.ObserveValidationFailure(string(kind))
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":  "validation failed",
				"model":  kind,
				"fields": verr.Fields,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc, ok := h.service(kind)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "model not configured: "+string(kind))
		return
	}

	result := svc.Predict(r.Context(), fv)
	requestID := predictor.RequestID(r.Context())
	if kind == ml.KindWheat {
		writeJSON(w, http.StatusOK, wheatResponse{
			Prediction:         result.Label,
			PredictedWheatType: result.Label,
			Variety:            ml.WheatVarieties[result.Label],
			Confidence:         result.Confidence,
			Fallback:           result.Fallback,
			Note:               result.Note,
			Model:              result.Model,
			Version:            result.Version,
			RequestID:          requestID,
		})
		return
	}
	writeJSON(w, http.StatusOK, carResponse{
		Prediction: result.Value,
		PriceLakhs: result.Value,
		Fallback:   result.Fallback,
		Note:       result.Note,
		Model:      result.Model,
		Version:    result.Version,
		RequestID:  requestID,
	})
}

func (h *handlers) service(kind ml.Kind) (*predictor.Service, bool) {
	if h.deps.Registry == nil {
		return nil, false
	}
	return h.deps.Registry.Get(kind)
}

func (h *handlers) writeRequestError(w http.ResponseWriter, err error) {
	var rerr *requestError
	if errors.As(err, &rerr) {
		writeError(w, rerr.status, rerr.message)
		return
	}
	h.deps.Logger.Warn("unexpected request error", zap.Error(err))
	writeError(w, http.StatusBadRequest, err.Error())
}

// decodeFields 读取JSON请求体或表单。以"{"开头的请求体无论Content-Type都按JSON解析，
// curl -d 默认发送的是表单类型
func decodeFields(r *http.Request) (ml.Fields, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	isJSON := mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
	if !isJSON && r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, bodyError(err, "invalid form body")
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		isJSON = bytes.HasPrefix(bytes.TrimSpace(body), []byte("{"))
	}
	if isJSON {
		return decodeJSONFields(r)
	}

	if err := r.ParseForm(); err != nil {
		return nil, bodyError(err, "invalid form body")
	}
	return ml.FieldsFromForm(r.Form), nil
}

// decodeJSONFields 解析JSON对象，查询参数只补充请求体中没有的字段
func decodeJSONFields(r *http.Request) (ml.Fields, error) {
	var fields ml.Fields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		return nil, bodyError(err, "invalid JSON body")
	}
	if fields == nil {
		fields = ml.Fields{}
	}
	query := ml.FieldsFromForm(r.URL.Query())
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !fields.Has(key) {
			fields[key] = query[key]
		}
	}
	return fields, nil
}

func bodyError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &requestError{http.StatusRequestEntityTooLarge, "request body too large"}
	}
	return &requestError{http.StatusBadRequest, message}
}

// detectKind 显式的model参数优先，否则根据出现的字段判断
func detectKind(r *http.Request, fields ml.Fields) (ml.Kind, error) {
	name := r.URL.Query().Get("model")
	if name == "" {
		name = fields.String("model")
	}
	if name != "" {
		switch strings.ToLower(name) {
		case "wheat", "seed", "seeds":
			return ml.KindWheat, nil
		case "car", "cars", "used_car":
			return ml.KindCar, nil
		}
		return "", &requestError{http.StatusBadRequest, "unknown model: " + name}
	}

	switch {
	case fields.Has(carMarkers...):
		return ml.KindCar, nil
	case fields.Has(wheatMarkers...):
		return ml.KindWheat, nil
	}
	return "", &requestError{http.StatusBadRequest, "cannot determine model; send model=wheat or model=car"}
}
