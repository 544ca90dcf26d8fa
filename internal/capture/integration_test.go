package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/id-capture/internal/document"
	"github.com/zombor/id-capture/internal/fieldset"
	"github.com/zombor/id-capture/internal/recognition"
	"github.com/zombor/id-capture/internal/session"
	"github.com/zombor/id-capture/internal/submission"
)

// scriptedEngine returns fixed text for any image it is given
type scriptedEngine struct {
	mu     sync.Mutex
	text   string
	images [][]byte
}

func (e *scriptedEngine) Name() string { return "scripted" }

func (e *scriptedEngine) Recognize(ctx context.Context, png []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images = append(e.images, png)
	return e.text, nil
}

func (e *scriptedEngine) Close() error { return nil }

func samplePNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.Black)
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Integration", func() {
	var (
		db       *submission.BoltDB
		engine   *scriptedEngine
		service  *Service
		ghServer *ghttp.Server
	)

	post := func(path string, body io.Reader, contentType string) *http.Response {
		resp, err := http.Post(ghServer.URL()+path, contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	BeforeEach(func() {
		var err error
		db, err = submission.NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())

		engine = &scriptedEngine{text: "DRIVER LICENSE\nname: Ada Lovelace\nDOCUMENT NUMBER:D1234567\nExpiration Date: 12/10/2031\n"}
		service, err = NewService(fieldset.Default(), recognition.NewAdapter(engine, 0, nil), db, nil)
		Expect(err).NotTo(HaveOccurred())

		server := NewServer(service, BasicAuth{})
		ghServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut} {
			ghServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		if ghServer != nil {
			ghServer.Close()
		}
		if db != nil {
			db.Close()
		}
	})

	It("should capture, edit and persist a submission", func() {
		// --- Step 1: create a session ---
		resp := post("/api/sessions", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var snap session.Snapshot
		decodeBody(resp, &snap)
		id := snap.SessionID
		Expect(id).NotTo(BeEmpty())

		// --- Step 2: upload the image and wait for recognition ---
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "license.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(samplePNG())
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp = post("/api/sessions/"+id+"/capture?wait=true", body, writer.FormDataContentType())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		decodeBody(resp, &snap)
		Expect(snap.State).To(Equal(session.Extracted))
		Expect(snap.Fields[document.Name].Value).To(Equal("Ada Lovelace"))
		Expect(snap.Fields[document.DocumentNumber].Value).To(Equal("D1234567"))
		Expect(snap.Fields[document.ExpirationDate].Value).To(Equal("12/10/2031"))
		Expect(snap.Submittable).To(BeTrue())
		Expect(engine.images).To(HaveLen(1))

		// --- Step 3: correct the name ---
		req, err := http.NewRequest(http.MethodPut, ghServer.URL()+"/api/sessions/"+id+"/fields/name", strings.NewReader(`{"value":"Augusta Ada King"}`))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		resp, err = http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		decodeBody(resp, &snap)
		Expect(snap.Fields[document.Name].Edited).To(BeTrue())
		Expect(snap.Submittable).To(BeTrue())

		// --- Step 4: submit ---
		resp = post("/api/sessions/"+id+"/submit", nil, "")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var sub document.Submission
		decodeBody(resp, &sub)

		// Verify the submission is in the database
		saved, err := db.GetSubmission(sub.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.SessionID).To(Equal(id))
		Expect(saved.Fields).To(Equal(map[document.FieldKey]string{
			document.Name:           "Augusta Ada King",
			document.DocumentNumber: "D1234567",
			document.ExpirationDate: "12/10/2031",
		}))

		// A second submit is rejected
		resp = post("/api/sessions/"+id+"/submit", nil, "")
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusConflict))

		subs, err := db.ListSubmissions()
		Expect(err).NotTo(HaveOccurred())
		Expect(subs).To(HaveLen(1))
	})

	It("should report an undecodable image as an errored session", func() {
		snap, err := service.CreateSession()
		Expect(err).NotTo(HaveOccurred())

		snap, err = service.Capture(context.Background(), snap.SessionID, []byte("not an image"), "image/png", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.State).To(Equal(session.Errored))
		Expect(snap.Error).NotTo(BeEmpty())
		Expect(engine.images).To(BeEmpty())

		raw, err := json.Marshal(snap)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(ContainSubstring(`"state":"errored"`))
	})
})
