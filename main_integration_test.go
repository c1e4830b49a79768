package main_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Satyam8589/SaveServe-sub000/internal/models"
)

const (
	testAppBinary      = "./saveserve_test_app"
	testAppPort        = "8089"
	testServiceApiPort = "8091"
	testAppURL         = "http://localhost:" + testAppPort
	testServiceApiURL  = "http://localhost:" + testServiceApiPort
	startupTimeout     = 15 * time.Second
	pingEndpoint       = testAppURL + "/v1/ping"
)

// TestMain builds the binary and runs it in 'all' mode against a local Redis
// with the in-memory store. Set INTEGRATION_TESTS=1 to enable.
func TestMain(m *testing.M) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		log.Println("INTEGRATION_TESTS not set, skipping integration tests.")
		return
	}
	defer func() {
		log.Println("Integration Test Teardown: Cleaning up test binary...")
		_ = os.Remove(testAppBinary)
	}()

	log.Println("Integration Test Setup: Building application...")
	godotenv.Load()
	buildCmd := exec.Command("go", "build", "-o", testAppBinary, ".")
	buildOutput, err := buildCmd.CombinedOutput()
	if err != nil {
		log.Printf("Failed to build application: %v\nOutput:\n%s", err, string(buildOutput))
		os.Exit(1)
	}

	appCmd := exec.Command(testAppBinary, "-m", "all")
	appCmd.Env = append(os.Environ(),
		"STORE_DRIVER=memory",
		"API_PORT="+testAppPort,
		"SERVICE_API_PORT="+testServiceApiPort,
		"JWT_SECRET=integration-test-secret",
		"GIN_MODE=release",
		"MOCK_SERVICES=true",
		"SWEEP_INTERVAL=5s",
		"NOTIFY_CHANNEL=saveserve:integration",
		"RATE_LIMIT_HARD_BUCKET_SIZE=100",
		"RATE_LIMIT_HARD_REFILL_RATE=100",
		"RATE_LIMIT_SOFT_BUCKET_SIZE=20",
		"RATE_LIMIT_SOFT_REFILL_RATE=20",
	)
	appCmd.Stderr = os.Stderr
	appCmd.Stdout = os.Stdout

	log.Println("Integration Test Setup: Starting application process...")
	if err := appCmd.Start(); err != nil {
		log.Printf("Failed to start application process: %v", err)
		os.Exit(1)
	}
	defer func() {
		log.Println("Integration Test Teardown: Sending SIGTERM to application...")
		if processErr := appCmd.Process.Signal(syscall.SIGTERM); processErr != nil {
			_ = appCmd.Process.Kill()
			return
		}
		_, _ = appCmd.Process.Wait()
	}()

	startTime := time.Now()
	ready := false
	for time.Since(startTime) < startupTimeout {
		resp, err := http.Get(pingEndpoint)
		if err == nil {
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK && string(bodyBytes) == "pong" {
				ready = true
				break
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	if !ready {
		log.Printf("Application failed to start within %v", startupTimeout)
		os.Exit(1)
	}

	exitCode := m.Run()
	log.Printf("Integration Test Teardown: Tests finished with exit code %d.", exitCode)
}

type serviceResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
}

func callServiceAPI(t *testing.T, method string, args interface{}) serviceResponse {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"method": method, "arguments": args})
	require.NoError(t, err)
	resp, err := http.Post(testServiceApiURL+"/api", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out serviceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Success, "service call %s failed: %s", method, out.Error)
	return out
}

func issueToken(t *testing.T, userID, role, subrole string) string {
	t.Helper()
	out := callServiceAPI(t, "issueToken", []string{userID, role, subrole})
	var token string
	require.NoError(t, json.Unmarshal(out.Result, &token))
	return token
}

func apiCall(t *testing.T, token, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, testAppURL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestIntegration_Ping(t *testing.T) {
	resp, err := http.Get(pingEndpoint)
	require.NoError(t, err)
	defer resp.Body.Close()
	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(bodyBytes))
}

func TestIntegration_ClaimToCollection(t *testing.T) {
	suffix := fmt.Sprint(time.Now().UnixNano())
	providerToken := issueToken(t, "prov-"+suffix, "provider", "")
	studentID := "stu-" + suffix
	studentToken := issueToken(t, studentID, "recipient", "student")

	var listing models.Listing
	status := apiCall(t, providerToken, "POST", "/v1/listings", map[string]interface{}{
		"title":         "Integration thali",
		"totalQuantity": 8,
		"expiryTime":    time.Now().Add(3 * time.Hour).UTC().Format(time.RFC3339),
		"location":      "Block C",
	}, &listing)
	require.Equal(t, http.StatusCreated, status)

	var booking models.Booking
	status = apiCall(t, studentToken, "POST", "/v1/bookings", map[string]interface{}{
		"listingId":         listing.ID.String(),
		"requestedQuantity": 5,
	}, &booking)
	require.Equal(t, http.StatusCreated, status)

	status = apiCall(t, providerToken, "POST", "/v1/bookings/"+booking.ID.String()+"/approve", map[string]int{"approvedQuantity": 3}, nil)
	require.Equal(t, http.StatusOK, status)

	var mine models.Booking
	status = apiCall(t, studentToken, "GET", "/v1/bookings/"+booking.ID.String(), nil, &mine)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, mine.Credential)

	var refreshed models.Listing
	status = apiCall(t, studentToken, "GET", "/v1/listings/"+listing.ID.String(), nil, &refreshed)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 5, refreshed.Remaining, "8 total, 3 approved")

	status = apiCall(t, providerToken, "POST", "/v1/collection/verify", map[string]string{"qrPayload": mine.Credential.QRPayload}, nil)
	assert.Equal(t, http.StatusOK, status)
	status = apiCall(t, providerToken, "POST", "/v1/collection/verify", map[string]string{"qrPayload": mine.Credential.QRPayload}, nil)
	assert.Equal(t, http.StatusConflict, status)

	// Events reach the inbox through the background worker.
	assert.Eventually(t, func() bool {
		var inbox struct {
			Data []models.BookingEvent `json:"data"`
		}
		if apiCall(t, studentToken, "GET", "/v1/notifications", nil, &inbox) != http.StatusOK {
			return false
		}
		for _, e := range inbox.Data {
			if e.Type == models.EventBookingCollected && e.BookingID == booking.ID {
				return true
			}
		}
		return false
	}, 10*time.Second, 250*time.Millisecond)
}

func TestIntegration_ServiceSweep(t *testing.T) {
	out := callServiceAPI(t, "sweep", nil)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Result, &report))
	assert.Contains(t, report, "failures")
}
