package capture

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/id-capture/internal/document"
	"github.com/zombor/id-capture/internal/session"
)

func uploadBody(field, filename string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeBody(resp *http.Response, v any) {
	defer resp.Body.Close()
	Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		recognizer  *mockRecognizer
		store       *mockStore
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if auth.Username != "" {
			req.SetBasicAuth(auth.Username, auth.Password)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	createSession := func() string {
		resp := do(http.MethodPost, "/api/sessions", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var snap session.Snapshot
		decodeBody(resp, &snap)
		return snap.SessionID
	}

	capture := func(id string) *http.Response {
		body, contentType := uploadBody("file", "card.png", []byte("image bytes"))
		return do(http.MethodPost, "/api/sessions/"+id+"/capture?wait=true", body, contentType)
	}

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	}

	BeforeEach(func() {
		recognizer = &mockRecognizer{text: cardText}
		store = newMockStore()
		service = newTestService(recognizer, store)
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("GET /api/fields", func() {
		It("should list the configured fields", func() {
			resp := do(http.MethodGet, "/api/fields", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var cfg struct {
				Fields []struct {
					Key string `json:"key"`
				} `json:"fields"`
			}
			decodeBody(resp, &cfg)
			Expect(cfg.Fields).To(HaveLen(3))
			Expect(cfg.Fields[0].Key).To(Equal("name"))
		})
	})

	Describe("sessions", func() {
		It("should create an idle session", func() {
			id := createSession()
			Expect(id).NotTo(BeEmpty())

			resp := do(http.MethodGet, "/api/sessions/"+id, nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var snap session.Snapshot
			decodeBody(resp, &snap)
			Expect(snap.State).To(Equal(session.Idle))
			Expect(snap.Status).To(Equal(session.Status(session.Idle)))
		})

		It("should return 404 for an unknown session", func() {
			resp := do(http.MethodGet, "/api/sessions/unknown", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should delete a session", func() {
			id := createSession()
			resp := do(http.MethodDelete, "/api/sessions/"+id, nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			resp = do(http.MethodGet, "/api/sessions/"+id, nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /api/sessions/{id}/capture", func() {
		var id string

		BeforeEach(func() {
			id = createSession()
		})

		It("should return the extracted fields when waiting", func() {
			resp := capture(id)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var snap session.Snapshot
			decodeBody(resp, &snap)
			Expect(snap.State).To(Equal(session.Extracted))
			Expect(snap.Status).To(Equal(session.StatusSubmittable))
			Expect(snap.Fields[document.Name].Value).To(Equal("John Smith"))
			Expect(snap.Fields[document.DocumentNumber].Value).To(Equal("X12345"))
			Expect(snap.Fields[document.ExpirationDate].Value).To(Equal("05/06/2030"))
		})

		It("should return 202 while recognition is running", func() {
			recognizer.gate = make(chan struct{})
			defer close(recognizer.gate)

			body, contentType := uploadBody("file", "card.jpg", []byte("image bytes"))
			resp := do(http.MethodPost, "/api/sessions/"+id+"/capture", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			var snap session.Snapshot
			decodeBody(resp, &snap)
			Expect(snap.State).To(Equal(session.Recognizing))

			body, contentType = uploadBody("file", "card.jpg", []byte("image bytes"))
			resp = do(http.MethodPost, "/api/sessions/"+id+"/capture", body, contentType)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should return 400 when no file is sent", func() {
			body, contentType := uploadBody("other", "card.png", []byte("image bytes"))
			resp := do(http.MethodPost, "/api/sessions/"+id+"/capture", body, contentType)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return 400 for a non-multipart body", func() {
			resp := do(http.MethodPost, "/api/sessions/"+id+"/capture", strings.NewReader("{}"), "application/json")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return 422 for an empty upload", func() {
			body, contentType := uploadBody("file", "card.png", nil)
			resp := do(http.MethodPost, "/api/sessions/"+id+"/capture", body, contentType)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		})

		It("should return 404 for an unknown session", func() {
			resp := capture("unknown")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("PUT /api/sessions/{id}/fields/{key}", func() {
		var id string

		BeforeEach(func() {
			id = createSession()
		})

		It("should return 409 before anything was extracted", func() {
			resp := do(http.MethodPut, "/api/sessions/"+id+"/fields/name", strings.NewReader(`{"value":"Jane Doe"}`), "application/json")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		When("the session has extracted fields", func() {
			BeforeEach(func() {
				resp := capture(id)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})

			It("should update the field and re-validate", func() {
				resp := do(http.MethodPut, "/api/sessions/"+id+"/fields/expiration_date", strings.NewReader(`{"value":"soon"}`), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var snap session.Snapshot
				decodeBody(resp, &snap)
				Expect(snap.Fields[document.ExpirationDate].Value).To(Equal("soon"))
				Expect(snap.Validation[document.ExpirationDate].Valid).To(BeFalse())
				Expect(snap.Validation[document.ExpirationDate].Message).To(Equal("Expiration date is required"))
				Expect(snap.Status).To(Equal(session.StatusEditing))
			})

			It("should return 400 for an unknown field", func() {
				resp := do(http.MethodPut, "/api/sessions/"+id+"/fields/height", strings.NewReader(`{"value":"6ft"}`), "application/json")
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})

			It("should return 400 without a value", func() {
				resp := do(http.MethodPut, "/api/sessions/"+id+"/fields/name", strings.NewReader(`{}`), "application/json")
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("POST /api/sessions/{id}/submit", func() {
		var id string

		BeforeEach(func() {
			id = createSession()
		})

		It("should return 409 when not submittable", func() {
			resp := do(http.MethodPost, "/api/sessions/"+id+"/submit", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			Expect(store.submissions).To(BeEmpty())
		})

		It("should store the submission", func() {
			resp := capture(id)
			resp.Body.Close()

			resp = do(http.MethodPost, "/api/sessions/"+id+"/submit", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var sub document.Submission
			decodeBody(resp, &sub)
			Expect(sub.SessionID).To(Equal(id))
			Expect(sub.Fields[document.DocumentNumber]).To(Equal("X12345"))

			resp = do(http.MethodGet, "/api/submissions/"+sub.ID, nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var stored document.Submission
			decodeBody(resp, &stored)
			Expect(stored.ID).To(Equal(sub.ID))

			resp = do(http.MethodGet, "/api/submissions", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var subs []document.Submission
			decodeBody(resp, &subs)
			Expect(subs).To(HaveLen(1))

			resp = do(http.MethodGet, "/api/sessions/"+id, nil, "")
			var snap session.Snapshot
			decodeBody(resp, &snap)
			Expect(snap.State).To(Equal(session.Submitted))
		})

		It("should delete a stored submission", func() {
			Expect(store.SaveSubmission(&document.Submission{ID: "sub-1", SessionID: "old"})).To(Succeed())

			resp := do(http.MethodDelete, "/api/submissions/sub-1", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(store.submissions).NotTo(HaveKey("sub-1"))

			resp = do(http.MethodDelete, "/api/submissions/sub-1", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should return 404 for an unknown submission", func() {
			resp := do(http.MethodGet, "/api/submissions/unknown", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /api/sessions/{id}/reset", func() {
		It("should return the session to idle", func() {
			id := createSession()
			resp := capture(id)
			resp.Body.Close()

			resp = do(http.MethodPost, "/api/sessions/"+id+"/reset", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var snap session.Snapshot
			decodeBody(resp, &snap)
			Expect(snap.State).To(Equal(session.Idle))
			Expect(snap.Fields).To(BeEmpty())
		})
	})

	Describe("GET /metrics", func() {
		It("should expose the capture counters", func() {
			id := createSession()
			resp := capture(id)
			resp.Body.Close()

			resp = do(http.MethodGet, "/metrics", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`idcapture_capture_requests_total{result="accepted"} 1`))
			Expect(string(body)).To(ContainSubstring("idcapture_active_sessions 1"))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do(http.MethodOptions, "/api/sessions", nil, "")
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "clerk", Password: "secret"}
			setupServer()
		})

		It("should accept valid credentials", func() {
			createSession()
		})

		It("should reject missing credentials", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/sessions", "", nil)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should reject the wrong password", func() {
			req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/api/sessions", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("clerk:wrong")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})
})
