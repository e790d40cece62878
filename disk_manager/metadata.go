package disk_manager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/cespare/xxhash/v2"
)

const (
	METADATA_MAGIC   uint32 = 0x4B53544C
	METADATA_VERSION uint16 = 1

	// magic(4) + version(2) + reserved(2) + page size(4) + reserved(4) + next page id(8) + retired count(8)
	metadataHeaderSize = 32
	checksumSize       = 8
)

// MetaData is the allocation state of the backing file. It lives in a sidecar file next to the
// data file so the data file stays a flat array of pages.
type MetaData struct {
	// NextPageId is the page ID handed out by the next allocation. Page IDs are never reused.
	NextPageId PageID

	// DeallocatedPageIds holds retired page IDs.
	DeallocatedPageIds map[PageID]struct{}
}

func newMetaData(nextPageId PageID) *MetaData {
	return &MetaData{
		NextPageId:         nextPageId,
		DeallocatedPageIds: make(map[PageID]struct{}),
	}
}

func metaDataPath(filePath string) string {
	return filePath + ".meta"
}

// EncodeMetaData serializes the metadata record, followed by an xxhash checksum of everything before it.
func EncodeMetaData(metadata *MetaData) []byte {

	retired := make([]PageID, 0, len(metadata.DeallocatedPageIds))
	for pageId := range metadata.DeallocatedPageIds {
		retired = append(retired, pageId)
	}
	slices.Sort(retired)

	data := make([]byte, metadataHeaderSize+8*len(retired)+checksumSize)

	binary.LittleEndian.PutUint32(data[0:4], METADATA_MAGIC)
	binary.LittleEndian.PutUint16(data[4:6], METADATA_VERSION)
	binary.LittleEndian.PutUint32(data[8:12], PAGE_SIZE)
	binary.LittleEndian.PutUint64(data[16:24], uint64(metadata.NextPageId))
	binary.LittleEndian.PutUint64(data[24:32], uint64(len(retired)))

	pointer := metadataHeaderSize
	for _, pageId := range retired {
		binary.LittleEndian.PutUint64(data[pointer:pointer+8], uint64(pageId))
		pointer += 8
	}

	binary.LittleEndian.PutUint64(data[pointer:pointer+8], xxhash.Sum64(data[:pointer]))

	return data
}

// DecodeMetaData validates and deserializes a record produced by EncodeMetaData.
func DecodeMetaData(data []byte) (*MetaData, error) {

	if len(data) < metadataHeaderSize+checksumSize {
		return nil, fmt.Errorf("%w: record is %d bytes", ErrInvalidMetaData, len(data))
	}

	body := data[:len(data)-checksumSize]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(data[len(body):]) {
		return nil, ErrChecksumMismatch
	}

	if binary.LittleEndian.Uint32(data[0:4]) != METADATA_MAGIC {
		return nil, fmt.Errorf("%w: bad magic number", ErrInvalidMetaData)
	}
	if version := binary.LittleEndian.Uint16(data[4:6]); version != METADATA_VERSION {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidMetaData, version)
	}
	if pageSize := binary.LittleEndian.Uint32(data[8:12]); pageSize != PAGE_SIZE {
		return nil, fmt.Errorf("%w: page size %d", ErrInvalidMetaData, pageSize)
	}

	metadata := newMetaData(PageID(binary.LittleEndian.Uint64(data[16:24])))

	retiredCount := binary.LittleEndian.Uint64(data[24:32])
	if uint64(len(body)-metadataHeaderSize) != retiredCount*8 {
		return nil, fmt.Errorf("%w: retired page list length mismatch", ErrInvalidMetaData)
	}

	pointer := metadataHeaderSize
	for range retiredCount {
		metadata.DeallocatedPageIds[PageID(binary.LittleEndian.Uint64(data[pointer:pointer+8]))] = struct{}{}
		pointer += 8
	}

	return metadata, nil
}

// readMetaData returns (nil, nil) when no sidecar exists.
func readMetaData(path string) (*MetaData, error) {

	data, err := os.ReadFile(path)

	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return DecodeMetaData(data)
}

// writeMetaData replaces the sidecar atomically by writing a temp file and renaming it over the old one.
func writeMetaData(path string, metadata *MetaData) error {

	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := f.Write(EncodeMetaData(metadata)); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
