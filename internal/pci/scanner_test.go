package pci

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/exec"
)

// MockFileSystem provides a mock implementation of FileSystem for testing.
type MockFileSystem struct {
	// Files maps path to file content
	Files map[string]string
	// Dirs maps path to directory entries
	Dirs map[string][]fs.DirEntry
	// Links maps symlink path to target
	Links map[string]string
	// Errors maps path to error to return
	Errors map[string]error
}

// NewMockFileSystem creates a new mock filesystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files:  make(map[string]string),
		Dirs:   make(map[string][]fs.DirEntry),
		Links:  make(map[string]string),
		Errors: make(map[string]error),
	}
}

// mockDirEntry implements fs.DirEntry for testing.
type mockDirEntry struct {
	name  string
	isDir bool
}

func (m mockDirEntry) Name() string               { return m.name }
func (m mockDirEntry) IsDir() bool                { return m.isDir }
func (m mockDirEntry) Type() fs.FileMode          { return 0 }
func (m mockDirEntry) Info() (fs.FileInfo, error) { return nil, nil }

// mockFileInfo implements fs.FileInfo for testing.
type mockFileInfo struct {
	name string
}

func (m mockFileInfo) Name() string       { return m.name }
func (m mockFileInfo) Size() int64        { return 0 }
func (m mockFileInfo) Mode() fs.FileMode  { return 0 }
func (m mockFileInfo) ModTime() time.Time { return time.Time{} }
func (m mockFileInfo) IsDir() bool        { return true }
func (m mockFileInfo) Sys() interface{}   { return nil }

func (m *MockFileSystem) ReadDir(dirname string) ([]fs.DirEntry, error) {
	if err, ok := m.Errors[dirname]; ok {
		return nil, err
	}
	if entries, ok := m.Dirs[dirname]; ok {
		return entries, nil
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) ReadFile(filename string) ([]byte, error) {
	if err, ok := m.Errors[filename]; ok {
		return nil, err
	}
	if content, ok := m.Files[filename]; ok {
		return []byte(content), nil
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) Readlink(name string) (string, error) {
	if err, ok := m.Errors[name]; ok {
		return "", err
	}
	if target, ok := m.Links[name]; ok {
		return target, nil
	}
	return "", os.ErrNotExist
}

func (m *MockFileSystem) Stat(name string) (fs.FileInfo, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	return mockFileInfo{name: filepath.Base(name)}, nil
}

// AddGroup adds an IOMMU group with the given member addresses to the
// mock sysfs tree rooted at iommuPath.
func (m *MockFileSystem) AddGroup(iommuPath string, groupID int, addresses ...string) {
	groupName := fmt.Sprintf("%d", groupID)
	m.Dirs[iommuPath] = append(m.Dirs[iommuPath], mockDirEntry{name: groupName, isDir: true})

	devicesDir := filepath.Join(iommuPath, groupName, "devices")
	for _, addr := range addresses {
		m.Dirs[devicesDir] = append(m.Dirs[devicesDir], mockDirEntry{name: addr})
	}
}

func newTestScanner(t *testing.T, mmOutput, kOutput string) (*Scanner, *exec.MockExecutor, *MockFileSystem) {
	t.Helper()
	mock := exec.NewMockExecutor()
	mock.SetResponseWithArgs("lspci", []string{"-mm"}, exec.SuccessResult(mmOutput))
	mock.SetResponseWithArgs("lspci", []string{"-k"}, exec.SuccessResult(kOutput))
	mfs := NewMockFileSystem()
	scanner := NewScanner(mock, WithFileSystem(mfs), WithIommuPath("/iommu"))
	return scanner, mock, mfs
}

func TestScanner_Devices(t *testing.T) {
	scanner, _, _ := newTestScanner(t, sampleMMOutput, sampleKOutput)

	devices, err := scanner.Devices(context.Background())

	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "amdgpu", devices[1].Driver)
	assert.Equal(t, "snd_hda_intel", devices[2].Driver)
	assert.Empty(t, devices[0].Driver)
}

func TestScanner_Devices_Memoized(t *testing.T) {
	scanner, mock, _ := newTestScanner(t, sampleMMOutput, sampleKOutput)
	ctx := context.Background()

	_, err := scanner.Devices(ctx)
	require.NoError(t, err)
	calls := mock.CallCount()

	_, err = scanner.Devices(ctx)
	require.NoError(t, err)

	// The second query is served from the pass cache.
	assert.Equal(t, calls, mock.CallCount())
}

func TestScanner_Reset_InvalidatesCache(t *testing.T) {
	scanner, mock, _ := newTestScanner(t, sampleMMOutput, sampleKOutput)
	ctx := context.Background()

	_, err := scanner.Devices(ctx)
	require.NoError(t, err)
	calls := mock.CallCount()

	scanner.Reset()
	_, err = scanner.Devices(ctx)
	require.NoError(t, err)

	assert.Greater(t, mock.CallCount(), calls)
}

func TestScanner_Devices_LspciUnavailable(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.SetResponseWithArgs("lspci", []string{"-mm"}, exec.ErrorResult(fmt.Errorf("executable not found")))
	scanner := NewScanner(mock)

	_, err := scanner.Devices(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Discovery))
}

func TestScanner_Devices_LspciNonZeroExit(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.SetResponseWithArgs("lspci", []string{"-mm"}, exec.FailureResult(1, "pcilib error"))
	scanner := NewScanner(mock)

	_, err := scanner.Devices(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Discovery))
}

func TestScanner_Devices_DriverPassFailureDegrades(t *testing.T) {
	mock := exec.NewMockExecutor()
	mock.SetResponseWithArgs("lspci", []string{"-mm"}, exec.SuccessResult(sampleMMOutput))
	mock.SetResponseWithArgs("lspci", []string{"-k"}, exec.FailureResult(1, "boom"))
	scanner := NewScanner(mock)

	devices, err := scanner.Devices(context.Background())

	// The -k pass failing only loses driver info.
	require.NoError(t, err)
	require.Len(t, devices, 3)
	for _, d := range devices {
		assert.Empty(t, d.Driver)
	}
}

func TestScanner_Devices_EmptyOutput(t *testing.T) {
	scanner, _, _ := newTestScanner(t, "", "")

	devices, err := scanner.Devices(context.Background())

	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestScanner_DisplayDevices(t *testing.T) {
	scanner, _, _ := newTestScanner(t, sampleMMOutput, sampleKOutput)

	displays, err := scanner.DisplayDevices(context.Background())

	require.NoError(t, err)
	require.Len(t, displays, 1)
	assert.Equal(t, "0b:00.0", displays[0].Address)
	assert.Equal(t, "1002:73bf", displays[0].IDPair())
}

func TestScanner_DisplayDevices_NoneFound(t *testing.T) {
	output := `00:00.0 "Host bridge" "RS780 Host Bridge" "AMD"`
	scanner, _, _ := newTestScanner(t, output, "")

	displays, err := scanner.DisplayDevices(context.Background())

	require.NoError(t, err)
	assert.Empty(t, displays)
}

func TestScanner_DisplayDevices_EachMarkerMatchedOnce(t *testing.T) {
	output := `01:00.0 "VGA compatible controller" "Card A [1111:0001]" "Vendor"
02:00.0 "3D controller" "Card B [1111:0002]" "Vendor"
03:00.0 "Display controller" "Card C [1111:0003]" "Vendor"
04:00.0 "Audio device" "Not a GPU [1111:0004]" "Vendor"
`
	scanner, _, _ := newTestScanner(t, output, "")

	displays, err := scanner.DisplayDevices(context.Background())

	require.NoError(t, err)
	require.Len(t, displays, 3)
	assert.Equal(t, "01:00.0", displays[0].Address)
	assert.Equal(t, "02:00.0", displays[1].Address)
	assert.Equal(t, "03:00.0", displays[2].Address)
}
