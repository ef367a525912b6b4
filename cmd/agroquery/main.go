package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "agrocore server URL")
	consensus := flag.Bool("consensus", false, "force a multi-expert consensus run")
	pattern := flag.String("pattern", "", "consensus collaboration pattern (default, weather_focus, regulatory_focus)")
	farmID := flag.String("farm", "", "farm identifier passed as query context")
	conversationID := flag.String("conversation", "", "conversation id for follow-up questions")
	flag.Parse()

	// One-shot mode: the query is the remaining arguments.
	if flag.NArg() > 0 {
		ask(*server, strings.Join(flag.Args(), " "), *consensus, *pattern, *farmID, *conversationID)
		return
	}

	fmt.Println("agrocore CLI")
	fmt.Printf("Server: %s\n", *server)
	fmt.Println("Type 'exit' or 'quit' to leave. Commands: /routes, /consensus <question>")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Au revoir !")
			return
		}
		if input == "/routes" {
			fetchRoutes(*server)
			continue
		}
		if rest, ok := strings.CutPrefix(input, "/consensus "); ok {
			ask(*server, rest, true, *pattern, *farmID, *conversationID)
			continue
		}

		ask(*server, input, *consensus, *pattern, *farmID, *conversationID)
	}
}

func fetchRoutes(server string) {
	resp, err := http.Get(server + "/api/routes")
	if err != nil {
		printError("Failed to fetch routes: %v", err)
		return
	}
	defer resp.Body.Close()

	var routes []struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&routes); err != nil {
		printError("Failed to parse routes: %v", err)
		return
	}
	fmt.Println("Available routes:")
	for _, r := range routes {
		fmt.Printf("  %-22s (%s)\n", r.Name, r.Kind)
	}
}

func ask(server, query string, consensus bool, pattern, farmID, conversationID string) {
	qctx := map[string]string{}
	if farmID != "" {
		qctx["farm_id"] = farmID
	}
	if conversationID != "" {
		qctx["conversation_id"] = conversationID
	}

	payload := map[string]interface{}{"query": query, "context": qctx}
	path := "/api/query"
	if consensus {
		path = "/api/consensus"
		if pattern != "" {
			payload["pattern"] = pattern
		}
	}

	body, _ := json.Marshal(payload)
	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Post(server+path, "application/json", bytes.NewReader(body))
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	if consensus {
		printConsensus(resp.Body)
		return
	}
	printQuery(resp.Body)
}

func printQuery(body io.Reader) {
	var result struct {
		Response        string   `json:"response"`
		RouteTaken      string   `json:"route_taken"`
		Confidence      float64  `json:"confidence"`
		Recommendations []string `json:"recommendations"`
		Status          string   `json:"status"`
	}
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}

	fmt.Printf("\033[36m[%s · %.0f%%]\033[0m %s\n", result.RouteTaken, result.Confidence*100, result.Response)
	for _, rec := range result.Recommendations {
		fmt.Printf("  - %s\n", rec)
	}
	if result.Status != "ok" {
		fmt.Printf("\033[33m(réponse en mode dégradé)\033[0m\n")
	}
}

func printConsensus(body io.Reader) {
	var result struct {
		Response         string             `json:"response"`
		ConversationID   string             `json:"conversation_id"`
		ConfidenceScores map[string]float64 `json:"confidence_scores"`
		ConsensusReached bool               `json:"consensus_reached"`
		Status           string             `json:"status"`
	}
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}

	fmt.Printf("\033[36m[consensus · %s]\033[0m %s\n", result.ConversationID, result.Response)
	for expert, score := range result.ConfidenceScores {
		fmt.Printf("  %s: %.2f\n", expert, score)
	}
	if !result.ConsensusReached || result.Status != "ok" {
		fmt.Printf("\033[33m(consensus partiel)\033[0m\n")
	}
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
