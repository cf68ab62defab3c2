package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

type sessionResponse struct {
	ID    string `json:"_id"`
	Token string `json:"token"`
}

func post(addr, path string, body any) (*http.Response, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return http.Post(addr+path, "application/json", bytes.NewBuffer(reqBody))
}

func get(addr, path, token string) (int, string, error) {
	req, err := http.NewRequest(http.MethodGet, addr+path, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Add("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), nil
}

func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	community := flag.String("community", "general", "community to inspect")
	flag.Parse()

	// 1. Register a throwaway user
	email := fmt.Sprintf("verify-%s@example.com", uuid.NewString()[:8])
	resp, err := post(*apiAddr, "/register", map[string]string{
		"name": "verify", "email": email, "password": "verify-password",
	})
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("Register failed (%d): %s", resp.StatusCode, body)
	}

	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		log.Fatal(err)
	}
	log.Printf("Registered %s, token: %s...", session.ID, session.Token[:10])

	// 2. Read side of the community
	for _, path := range []string{
		"/history?community=" + url.QueryEscape(*community),
		"/communities/" + url.PathEscape(*community) + "/users",
		"/communities/" + url.PathEscape(*community) + "/activity",
		"/users/profile",
	} {
		status, body, err := get(*apiAddr, path, session.Token)
		if err != nil {
			log.Fatalf("%s failed: %v", path, err)
		}
		log.Printf("%s -> %d %s", path, status, body)
	}
}
