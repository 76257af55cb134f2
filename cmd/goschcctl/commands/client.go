package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// errServerResponse wraps a non-2xx response body from goschcd.
var errServerResponse = errors.New("goschcd returned an error")

// postJSON POSTs body as JSON to path and decodes the response into out.
func postJSON(path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := httpClient.Post(baseURL()+path, "application/json", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

// getJSON issues a GET to path and decodes the response into out.
func getJSON(path string, out any) error {
	resp, err := httpClient.Get(baseURL() + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %w: %s", resp.Status, errServerResponse, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
