// fakeci is a standalone stand-in for a Jenkins-style CI server, used for
// manual testing of buildwatch without a real CI deployment.
//
// It serves the two endpoints buildwatch queries:
//
//	GET /job/{name}/api/json          -> {"lastBuild": {"number": N}}
//	GET /job/{name}/{number}/api/json -> {"building": bool, "result": "..."}
//
// Builds are created and completed through a small control API:
//
//	POST /control/start?job=NAME                 start a new build (returns its number)
//	POST /control/finish?job=NAME&result=SUCCESS finish the newest running build
//	GET  /control/dump                           print current state
//
// Started builds also auto-finish after AUTO_FINISH (default 2m) so a
// forgotten build never stays running forever.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type build struct {
	Number   int    `json:"number"`
	Building bool   `json:"building"`
	Result   string `json:"result,omitempty"`
}

type server struct {
	mu         sync.Mutex
	jobs       map[string][]*build // newest last
	autoFinish time.Duration
}

func main() {
	addr := ":9095"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	autoFinish := 2 * time.Minute
	if v := os.Getenv("AUTO_FINISH"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("fakeci: invalid AUTO_FINISH %q: %v", v, err)
		}
		autoFinish = d
	}

	s := &server{
		jobs:       make(map[string][]*build),
		autoFinish: autoFinish,
	}

	http.HandleFunc("/job/", s.jobHandler)
	http.HandleFunc("/control/start", s.startHandler)
	http.HandleFunc("/control/finish", s.finishHandler)
	http.HandleFunc("/control/dump", s.dumpHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	log.Printf("fakeci listening on %s (auto_finish=%s)", addr, autoFinish)
	log.Fatal(http.ListenAndServe(addr, nil))
}

// jobHandler serves /job/{name}/api/json and /job/{name}/{number}/api/json.
func (s *server) jobHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 4 && parts[0] == "job" && parts[2] == "api" && parts[3] == "json":
		s.serveJob(w, parts[1])
	case len(parts) == 5 && parts[0] == "job" && parts[3] == "api" && parts[4] == "json":
		s.serveBuild(w, parts[1], parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *server) serveJob(w http.ResponseWriter, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	builds, ok := s.jobs[name]
	if !ok {
		http.NotFound(w, nil)
		return
	}

	var payload struct {
		LastBuild *struct {
			Number int `json:"number"`
		} `json:"lastBuild"`
	}
	if len(builds) > 0 {
		last := builds[len(builds)-1]
		payload.LastBuild = &struct {
			Number int `json:"number"`
		}{Number: last.Number}
	}

	writeJSON(w, payload)
}

func (s *server) serveBuild(w http.ResponseWriter, name, number string) {
	n, err := strconv.Atoi(number)
	if err != nil {
		http.NotFound(w, nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.jobs[name] {
		if b.Number == n {
			writeJSON(w, b)
			return
		}
	}
	http.NotFound(w, nil)
}

func (s *server) startHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("job")
	if name == "" {
		http.Error(w, "job is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	b := &build{Number: len(s.jobs[name]) + 1, Building: true}
	s.jobs[name] = append(s.jobs[name], b)
	s.mu.Unlock()

	// Auto-finish so a forgotten build eventually completes.
	go func(name string, number int) {
		time.Sleep(s.autoFinish)
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, b := range s.jobs[name] {
			if b.Number == number && b.Building {
				b.Building = false
				b.Result = "SUCCESS"
				log.Printf("fakeci: auto-finished %s #%d", name, number)
			}
		}
	}(name, b.Number)

	log.Printf("fakeci: started %s #%d", name, b.Number)
	writeJSON(w, b)
}

func (s *server) finishHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("job")
	result := r.URL.Query().Get("result")
	if result == "" {
		result = "SUCCESS"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	builds := s.jobs[name]
	for i := len(builds) - 1; i >= 0; i-- {
		if builds[i].Building {
			builds[i].Building = false
			builds[i].Result = result
			log.Printf("fakeci: finished %s #%d (%s)", name, builds[i].Number, result)
			writeJSON(w, builds[i])
			return
		}
	}
	http.Error(w, "no running build", http.StatusNotFound)
}

func (s *server) dumpHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, s.jobs)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("fakeci: encode error: %v", err)
	}
}
