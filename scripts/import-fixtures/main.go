package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Seeds a running API instance from local spreadsheet fixtures. Sessions go
// first so the wish import can resolve exam days.
func main() {
	var (
		baseURL  string
		email    string
		password string
		roster   string
		wishes   string
		sessions string
		timeout  time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&email, "email", "admin@example.com", "Login email")
	flag.StringVar(&password, "password", "", "Login password")
	flag.StringVar(&roster, "roster", filepath.Join("fixtures", "enseignants.csv"), "Roster CSV/XLSX file")
	flag.StringVar(&wishes, "wishes", filepath.Join("fixtures", "souhaits.csv"), "Availability CSV/XLSX file")
	flag.StringVar(&sessions, "sessions", filepath.Join("fixtures", "seances.csv"), "Session catalog CSV/XLSX file")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "HTTP client timeout")
	flag.Parse()

	if password == "" {
		log.Fatal("password is required (-password)")
	}

	client := &http.Client{Timeout: timeout}

	token, err := login(client, baseURL, email, password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	uploads := []struct {
		name string
		path string
		url  string
	}{
		{"sessions", sessions, baseURL + "/calendar/import"},
		{"roster", roster, baseURL + "/teachers/import"},
		{"wishes", wishes, baseURL + "/teachers/availability/import"},
	}

	for _, u := range uploads {
		if u.path == "" {
			continue
		}
		if _, err := os.Stat(u.path); err != nil {
			log.Printf("skipping %s: %v", u.name, err)
			continue
		}
		body, err := uploadFile(client, u.url, token, u.path)
		if err != nil {
			log.Fatalf("%s import failed: %v", u.name, err)
		}
		fmt.Printf("%s: %s\n", u.name, body)
	}
}

func login(client *http.Client, baseURL, email, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}

	resp, err := client.Post(baseURL+"/auth/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", err
	}
	if envelope.Data.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return envelope.Data.AccessToken, nil
}

func uploadFile(client *http.Client, url, token, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close() //nolint:errcheck

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return string(body), nil
}
