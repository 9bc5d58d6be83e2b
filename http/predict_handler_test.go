package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func wheatValues() url.Values {
	return url.Values{
		"area":            {"15.26"},
		"perimeter":       {"14.84"},
		"compactness":     {"0.871"},
		"length":          {"5.763"},
		"width":           {"3.312"},
		"asymmetry_coeff": {"2.221"},
		"groove":          {"5.22"},
	}
}

func TestCarPredictFallback(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(postForm("/car/predict", url.Values{
		"brand_model":       {"Honda City"},
		"location":          {"mumbai"},
		"year":              {"2015"},
		"kilometers_driven": {"50000"},
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if payload["prediction"].(float64) != 16.5 || payload["price_lakhs"].(float64) != 16.5 {
		t.Errorf("unexpected price: %v", payload)
	}
	if payload["fallback"] != true || payload["note"] == "" {
		t.Errorf("fallback should be flagged with a note: %v", payload)
	}
}

func TestWheatProcessWithModel(t *testing.T) {
	env := newTestEnv(t, seedTree)

	for _, path := range []string{"/process", "/wheat/process"} {
		rr := env.do(postForm(path, wheatValues()))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rr.Code, rr.Body.String())
		}
		payload := decodeBody(t, rr)
		if payload["predicted_wheat_type"].(float64) != 2 || payload["variety"] != "Rosa" {
			t.Errorf("%s: unexpected prediction: %v", path, payload)
		}
		if payload["fallback"] != false || payload["confidence"].(float64) != 0.8 {
			t.Errorf("%s: expected model prediction: %v", path, payload)
		}
	}
}

func TestPredictWheatJSONCapitalizedKeys(t *testing.T) {
	env := newTestEnv(t, seedTree)

	body := `{"Area": 12.1, "Perimeter": 13.2, "Compactness": 0.87, "Length": 5.1,
		"Width": 2.9, "AsymmetryCoeff": 3.1, "Groove": 4.9}`
	rr := env.do(postJSON("/predict", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if payload["predicted_wheat_type"].(float64) != 3 || payload["variety"] != "Canadian" {
		t.Errorf("unexpected prediction: %v", payload)
	}
}

func TestPredictJSONWithoutJSONContentType(t *testing.T) {
	env := newTestEnv(t, seedTree)

	body := `{"area": 15.26, "perimeter": 14.84, "compactness": 0.871, "length": 5.763,
		"width": 3.312, "asymmetry_coeff": 2.221, "groove": 5.22}`
	for _, contentType := range []string{"", "application/x-www-form-urlencoded", "text/plain"} {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rr := env.do(req)
		if rr.Code != http.StatusOK {
			t.Fatalf("content type %q: expected 200, got %d: %s", contentType, rr.Code, rr.Body.String())
		}
		payload := decodeBody(t, rr)
		if payload["predicted_wheat_type"].(float64) != 2 || payload["variety"] != "Rosa" {
			t.Errorf("content type %q: unexpected prediction: %v", contentType, payload)
		}
	}
}

func TestPredictJSONBodyWinsOverQuery(t *testing.T) {
	env := newTestEnv(t, seedTree)

	body := `{"Area": 12.1, "Perimeter": 13.2, "Compactness": 0.87, "Length": 5.1,
		"Width": 2.9, "AsymmetryCoeff": 3.1, "Groove": 4.9}`
	for i := 0; i < 20; i++ {
		rr := env.do(postJSON("/predict?model=wheat&area=15.26", body))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if label := decodeBody(t, rr)["predicted_wheat_type"].(float64); label != 3 {
			t.Fatalf("run %d: query value leaked into body fields, got class %v", i, label)
		}
	}
}

func TestPredictAmbiguousFormKeys(t *testing.T) {
	env := newTestEnv(t, seedTree)

	values := wheatValues()
	values.Set("AREA", "12.1")
	rr := env.do(postForm("/wheat/process", values))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	fields := decodeBody(t, rr)["fields"].(map[string]interface{})
	if reason, _ := fields["Area"].(string); !strings.HasPrefix(reason, "ambiguous field") {
		t.Errorf("Area should be reported as ambiguous: %v", fields)
	}
}

func TestPredictWheatWithoutModel(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(postForm("/predict?model=wheat", wheatValues()))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["prediction"].(float64) != 1 || payload["fallback"] != true {
		t.Errorf("expected constant fallback class: %v", payload)
	}
}

func TestPredictDetectsCar(t *testing.T) {
	env := newTestEnv(t, "")

	body := `{"brand_model": "Toyota Innova", "location": "Delhi", "year": 1990, "kilometers_driven": 500000}`
	rr := env.do(postJSON("/predict", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if price := decodeBody(t, rr)["price_lakhs"].(float64); price != 1.0 {
		t.Errorf("negative estimate must clamp to 1.0, got %v", price)
	}
}

func TestPredictNonNumericField(t *testing.T) {
	env := newTestEnv(t, "")

	values := wheatValues()
	values.Set("width", "wide")
	rr := env.do(postForm("/process", values))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["error"] != "validation failed" {
		t.Errorf("unexpected error: %v", payload["error"])
	}
	fields := payload["fields"].(map[string]interface{})
	if _, ok := fields["Width"]; !ok {
		t.Errorf("Width should be reported: %v", fields)
	}
}

func TestPredictMissingCarFields(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(postJSON("/car/predict", `{"year": 2015}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	fields := decodeBody(t, rr)["fields"].(map[string]interface{})
	for _, name := range []string{"Brand_Model", "Location", "Kilometers_Driven"} {
		if _, ok := fields[name]; !ok {
			t.Errorf("%s should be reported: %v", name, fields)
		}
	}
}

func TestPredictInvalidJSON(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(postJSON("/predict", `{"area": `))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if msg := decodeBody(t, rr)["error"]; msg != "invalid JSON body" {
		t.Errorf("unexpected error: %v", msg)
	}
}

func TestPredictUndetectableModel(t *testing.T) {
	env := newTestEnv(t, "")

	rr := env.do(postJSON("/predict", `{"colour": "red"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = env.do(postJSON("/predict?model=boat", `{}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown model, got %d", rr.Code)
	}
}

func TestRequestBodyTooLarge(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 16
	handler := NewHandler(cfg, Deps{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, postJSON("/predict", `{"area": 15.26, "perimeter": 14.84}`))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestRecoveryReturnsJSON(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if msg := decodeBody(t, rr)["error"]; msg != "internal server error" {
		t.Errorf("unexpected error: %v", msg)
	}
}
