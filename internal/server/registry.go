package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"datapilot/internal/dataset"
	"datapilot/internal/logging"
)

// Registry maps dataset names to the directories their CSV files live in.
type Registry struct {
	mu    sync.RWMutex
	paths map[string]string
	// uploadDir receives new datasets registered over HTTP.
	uploadDir string
}

// NewRegistry creates a registry writing uploads under uploadDir.
func NewRegistry(uploadDir string) *Registry {
	return &Registry{
		paths:     make(map[string]string),
		uploadDir: uploadDir,
	}
}

// Register makes an on-disk dataset available under the given name.
func (r *Registry) Register(name, path string) error {
	if !validDatasetName(name) {
		return fmt.Errorf("invalid dataset name %q", name)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("dataset path: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[name] = path
	return nil
}

// Load opens the named dataset as a workbook.
func (r *Registry) Load(name string) (*dataset.Workbook, error) {
	r.mu.RLock()
	path, ok := r.paths[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dataset %q is not registered", name)
	}
	return dataset.Load(path)
}

// Names lists registered datasets in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.paths))
	for name := range r.paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var datasetNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

func validDatasetName(name string) bool {
	return datasetNameRe.MatchString(name)
}

// UploadDataset registers a dataset from a multipart CSV upload. Multiple
// uploads under the same name add sheets to the same dataset.
func (h *Handlers) UploadDataset(c *gin.Context) {
	name := c.PostForm("name")
	if !validDatasetName(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name must be 1-64 characters of [a-zA-Z0-9_-]"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a CSV file upload is required"})
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only CSV files are accepted"})
		return
	}

	dir := filepath.Join(h.datasets.uploadDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store dataset"})
		return
	}

	dst := filepath.Join(dir, filepath.Base(header.Filename))
	out, err := os.Create(dst)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store dataset"})
		return
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store dataset"})
		return
	}

	// Reject files the loader cannot parse.
	if _, err := dataset.LoadCSV(dst); err != nil {
		_ = os.Remove(dst)
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unreadable CSV: %v", err)})
		return
	}

	if err := h.datasets.Register(name, dir); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logging.Server("dataset %q registered from upload %s", name, header.Filename)
	c.JSON(http.StatusCreated, gin.H{"dataset": name, "file": filepath.Base(header.Filename)})
}

// ListDatasets returns every registered dataset with its sheet schemas.
func (h *Handlers) ListDatasets(c *gin.Context) {
	type sheetInfo struct {
		Name   string              `json:"name"`
		Schema dataset.TableSchema `json:"schema"`
	}
	type datasetInfo struct {
		Name   string      `json:"name"`
		Sheets []sheetInfo `json:"sheets"`
	}

	var out []datasetInfo
	for _, name := range h.datasets.Names() {
		wb, err := h.datasets.Load(name)
		if err != nil {
			logging.Server("list datasets: skipping %q: %v", name, err)
			continue
		}
		info := datasetInfo{Name: name}
		for _, sheet := range wb.Order {
			info.Sheets = append(info.Sheets, sheetInfo{
				Name:   sheet,
				Schema: wb.Sheets[sheet].Schema(),
			})
		}
		out = append(out, info)
	}

	c.JSON(http.StatusOK, gin.H{"datasets": out})
}
