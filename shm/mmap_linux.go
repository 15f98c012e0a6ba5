package shm

import (
	"path/filepath"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

// CreateShared creates and maps the named region under /dev/shm, the
// moral equivalent of shm_open(O_CREAT|O_EXCL) + ftruncate + mmap. The
// creator owns the region and should Destroy it when done.
func CreateShared(name string) (*Channel, error) {
	return mapShared(name, true)
}

// OpenShared attaches to a region another process created.
func OpenShared(name string) (*Channel, error) {
	return mapShared(name, false)
}

func mapShared(name string, create bool) (*Channel, error) {
	path := filepath.Join(shmDir, name)
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if create {
		flags |= unix.O_CREAT | unix.O_EXCL
	}
	fd, err := unix.Open(path, flags, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "shm: open %s", path)
	}
	size := int(unsafe.Sizeof(record{}))
	if create {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			unix.Close(fd)
			unix.Unlink(path)
			return nil, errors.Wrapf(err, "shm: truncate %s", path)
		}
	}
	b, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	unix.Close(fd)
	if err != nil {
		if create {
			unix.Unlink(path)
		}
		return nil, errors.Wrapf(err, "shm: mmap %s", path)
	}
	rec := (*record)(unsafe.Pointer(&b[0]))
	mu := &futexMutex{w: &rec.lock}
	return &Channel{
		rec:      rec,
		mu:       mu,
		cmdCond:  &futexCond{seq: &rec.cmdSeq, mu: mu},
		respCond: &futexCond{seq: &rec.respSeq, mu: mu},
		detach: func() error {
			return unix.Munmap(b)
		},
		remove: func() error {
			return multierr.Combine(unix.Munmap(b), unix.Unlink(path))
		},
	}, nil
}
