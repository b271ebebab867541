package ukvd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vehicleDataItems = `{
	"Vrm": "AB12CDE",
	"Make": "BMW",
	"Model": "3 Series",
	"Variant": "320d M Sport",
	"Colour": "Black",
	"FuelType": "Diesel",
	"Transmission": "Manual",
	"BodyStyle": "Saloon",
	"EngineCapacityCc": 1995,
	"NumberOfDoors": 4,
	"NumberOfSeats": 5,
	"Co2Gkm": 120,
	"YearOfManufacture": 2018,
	"TwelveMonthVed": 180,
	"InsuranceGroup": "29E",
	"UrbanMpg": 50.4,
	"ExtraUrbanMpg": 67.3,
	"CombinedMpg": 60.1,
	"LastRecordedMileage": 41200
}`

func successBody(dataItems string) string {
	return fmt.Sprintf(`{"Response":{"StatusCode":"Success","StatusMessage":"OK","DataItems":%s}}`, dataItems)
}

func TestVehicleData(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode ErrorCode
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   successBody(vehicleDataItems),
		},
		{
			name:     "auth_failure",
			status:   http.StatusUnauthorized,
			body:     `{"error":"invalid api key"}`,
			wantCode: CodeAuth,
		},
		{
			name:     "rate_limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error":"quota exceeded"}`,
			wantCode: CodeRateLimited,
		},
		{
			name:     "server_error",
			status:   http.StatusInternalServerError,
			body:     `{"error":"internal"}`,
			wantCode: CodeUpstream,
		},
		{
			name:     "vrm_not_found",
			status:   http.StatusOK,
			body:     `{"Response":{"StatusCode":"ItemNotFound","StatusMessage":"no record for vrm"}}`,
			wantCode: CodeNotFound,
		},
		{
			name:     "provider_reported_failure",
			status:   http.StatusOK,
			body:     `{"Response":{"StatusCode":"SystemError","StatusMessage":"backend offline"}}`,
			wantCode: CodeUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/datapackage/VehicleData", r.URL.Path)
				assert.Equal(t, "test-key", r.URL.Query().Get("auth_apikey"))
				assert.Equal(t, "AB12CDE", r.URL.Query().Get("key_VRM"))

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))
			got, err := client.VehicleData(context.Background(), "AB12CDE")

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, ErrCode(err))
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "BMW", got.Make)
			assert.Equal(t, "3 Series", got.Model)
			assert.Equal(t, "Diesel", got.FuelType)
			assert.Equal(t, 1995, got.EngineCapacityCC)
			assert.Equal(t, 41200, got.LastRecordedMileage)
		})
	}
}

func TestVehicleData_EmptyVRM(t *testing.T) {
	client := NewClient("test-key")
	_, err := client.VehicleData(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, CodeBadRequest, ErrCode(err))
}

func TestVehicleData_MalformedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.VehicleData(context.Background(), "AB12CDE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal VehicleData envelope")
}

func TestMOTHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/datapackage/MotHistoryData", r.URL.Path)
		_, _ = w.Write([]byte(successBody(`{
			"RecordList": [
				{"TestDate":"2024-03-01T00:00:00Z","TestResult":"Pass","OdometerReading":39000},
				{"TestDate":"2025-03-04T00:00:00Z","TestResult":"Pass","OdometerReading":44100,
				 "AdvisoryNoticeList":["Tyre worn close to legal limit"]}
			]
		}`)))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	tests, err := client.MOTHistory(context.Background(), "AB12CDE")
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.Equal(t, "Pass", tests[0].TestResult)
	assert.Equal(t, 44100, tests[1].Odometer)
	assert.Equal(t, []string{"Tyre worn close to legal limit"}, tests[1].Advisories)
}

func TestMOTHistory_NoRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(successBody(`{"RecordList": []}`)))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	tests, err := client.MOTHistory(context.Background(), "AB12CDE")
	require.NoError(t, err)
	assert.Empty(t, tests)
}

func TestProvenanceCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/datapackage/VdiCheckFull", r.URL.Path)
		_, _ = w.Write([]byte(successBody(`{
			"Stolen": false,
			"WrittenOff": true,
			"OutstandingFinance": false,
			"PreviousKeeperCount": 3,
			"MileageRecordList": [
				{"DateOfInformation":"2023-06-01T00:00:00Z","Mileage":30500,"SourceOfRecord":"MOT"}
			]
		}`)))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	check, err := client.ProvenanceCheck(context.Background(), "AB12CDE")
	require.NoError(t, err)
	assert.True(t, check.WrittenOff)
	assert.False(t, check.Stolen)
	assert.Equal(t, 3, check.PreviousKeepers)
	require.Len(t, check.MileageRecords, 1)
	assert.Equal(t, 30500, check.MileageRecords[0].Mileage)
}

func TestSnapshot_AllResourcesSucceed(t *testing.T) {
	srv := newDatapackageServer(t, map[string]handlerFunc{
		"VehicleData":    respond(http.StatusOK, successBody(vehicleDataItems)),
		"MotHistoryData": respond(http.StatusOK, successBody(`{"RecordList":[{"TestDate":"2025-03-04T00:00:00Z","TestResult":"Pass","OdometerReading":44100}]}`)),
		"VdiCheckFull":   respond(http.StatusOK, successBody(`{"PreviousKeeperCount":2}`)),
	})
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	snap, err := client.Snapshot(context.Background(), "AB12CDE")
	require.NoError(t, err)
	assert.Equal(t, "AB12CDE", snap.VRM)
	require.NotNil(t, snap.Vehicle)
	require.NotNil(t, snap.Provenance)
	require.Len(t, snap.MOTTests, 1)
	assert.Empty(t, snap.Warnings)
}

func TestSnapshot_SubResourceFailuresTolerated(t *testing.T) {
	srv := newDatapackageServer(t, map[string]handlerFunc{
		"VehicleData":    respond(http.StatusOK, successBody(vehicleDataItems)),
		"MotHistoryData": respond(http.StatusInternalServerError, `{"error":"internal"}`),
		"VdiCheckFull":   respond(http.StatusInternalServerError, `{"error":"internal"}`),
	})
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	snap, err := client.Snapshot(context.Background(), "AB12CDE")
	require.NoError(t, err)
	require.NotNil(t, snap.Vehicle)
	assert.Nil(t, snap.Provenance)
	assert.Nil(t, snap.MOTTests)
	assert.ElementsMatch(t, []string{
		"ownership and condition history unavailable",
		"MOT history unavailable",
	}, snap.Warnings)
}

func TestSnapshot_CoreFailureFailsSnapshot(t *testing.T) {
	srv := newDatapackageServer(t, map[string]handlerFunc{
		"VehicleData":    respond(http.StatusOK, `{"Response":{"StatusCode":"ItemNotFound","StatusMessage":"no record"}}`),
		"MotHistoryData": respond(http.StatusOK, successBody(`{"RecordList":[]}`)),
		"VdiCheckFull":   respond(http.StatusOK, successBody(`{}`)),
	})
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	snap, err := client.Snapshot(context.Background(), "AB12CDE")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, ErrCode(err))
	assert.Nil(t, snap)
}

func TestSandboxMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("api_testmode"))
		_, _ = w.Write([]byte(successBody(vehicleDataItems)))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithSandbox(true))
	_, err := client.VehicleData(context.Background(), "AB12CDE")
	require.NoError(t, err)
}

func TestLatestMileage(t *testing.T) {
	day := func(s string) time.Time {
		ts, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return ts
	}

	tests := []struct {
		name string
		snap *Snapshot
		want int
	}{
		{"nil_snapshot", nil, 0},
		{"empty", &Snapshot{}, 0},
		{
			"core_payload_only",
			&Snapshot{Vehicle: &VehicleData{LastRecordedMileage: 12000}},
			12000,
		},
		{
			"latest_mot_wins_over_older_record",
			&Snapshot{
				Vehicle: &VehicleData{LastRecordedMileage: 12000},
				Provenance: &ProvenanceCheck{MileageRecords: []MileageRecord{
					{DateOfInformation: day("2023-01-01"), Mileage: 30000},
				}},
				MOTTests: []MOTTest{
					{TestDate: day("2024-06-01"), Odometer: 35000},
				},
			},
			35000,
		},
		{
			"latest_mileage_record_wins",
			&Snapshot{
				Provenance: &ProvenanceCheck{MileageRecords: []MileageRecord{
					{DateOfInformation: day("2025-02-01"), Mileage: 40100},
					{DateOfInformation: day("2022-02-01"), Mileage: 22000},
				}},
				MOTTests: []MOTTest{
					{TestDate: day("2024-06-01"), Odometer: 35000},
				},
			},
			40100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.snap.LatestMileage())
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient("my-key")
	hc := c.(*httpClient)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, defaultBaseURL, hc.baseURL)
	assert.False(t, hc.sandbox)
	assert.NotNil(t, hc.http)
	assert.NotNil(t, hc.limiter)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request)

func respond(status int, body string) handlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// newDatapackageServer routes /api/datapackage/<name> to per-package handlers.
func newDatapackageServer(t *testing.T, handlers map[string]handlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/api/datapackage/")
		h, ok := handlers[name]
		if !ok {
			t.Errorf("unexpected datapackage request: %s", name)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	}))
}

// Ensure fixtures stay valid JSON as they evolve.
func TestVehicleDataFixtureIsValidJSON(t *testing.T) {
	var v VehicleData
	require.NoError(t, json.Unmarshal([]byte(vehicleDataItems), &v))
	assert.Equal(t, "AB12CDE", v.VRM)
}
