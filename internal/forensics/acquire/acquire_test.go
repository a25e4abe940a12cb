package acquire_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/forensics/acquire"
	"github.com/virtforensics/memory-inspector/internal/forensics/runner"
)

func TestAcquire(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Acquire Suite")
}

// fakeRunner scripts the external commands acquisition shells out to.
type fakeRunner struct {
	handle func(cmd runner.Command) (runner.Result, error)
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	return f.handle(cmd)
}

func stdout(s string) runner.Result {
	return runner.Result{Stdout: []byte(s)}
}

var _ = Describe("image acquisition", func() {
	var (
		cfg      *config.Config
		dumpDir  string
		payload  []byte
		instance string
	)

	BeforeEach(func() {
		dumpDir = GinkgoT().TempDir()
		cfg = config.NewDefault()
		cfg.Forensics.DumpDirectory = dumpDir
		cfg.Forensics.MinImageBytes = 16
		payload = []byte("not really a memory image but big enough")
		instance = "web-frontend-01"
	})

	newRunner := func(domains string, psOut string) *fakeRunner {
		return &fakeRunner{handle: func(cmd runner.Command) (runner.Result, error) {
			switch {
			case strings.HasSuffix(cmd.Path, "virsh") && cmd.Args[0] == "-q":
				return stdout(domains), nil
			case strings.HasSuffix(cmd.Path, "ps"):
				return stdout(psOut), nil
			case strings.HasSuffix(cmd.Path, "virsh") && cmd.Args[0] == "dump":
				err := os.WriteFile(cmd.Args[2], payload, 0o600)
				return runner.Result{}, err
			}
			return runner.Result{ExitCode: 1}, nil
		}}
	}

	Context("domain resolution", func() {
		It("prefers the qemu process command line match", func() {
			ps := fmt.Sprintf("/usr/bin/qemu-system-x86_64 -name guest=vm-alpha,debug-threads=on -uuid %s", instance)
			a := acquire.NewAcquirer(cfg, newRunner("vm-alpha\nvm-beta\n", ps))

			image, err := a.Acquire(context.TODO(), instance)
			Expect(err).To(BeNil())
			Expect(image.Domain).To(Equal("vm-alpha"))
		})

		It("falls back to the deterministic naming pattern", func() {
			a := acquire.NewAcquirer(cfg, newRunner("instance-"+instance+"\nother\n", "no qemu here"))

			image, err := a.Acquire(context.TODO(), instance)
			Expect(err).To(BeNil())
			Expect(image.Domain).To(Equal("instance-" + instance))
		})

		It("matches the dash-stripped uuid naming pattern", func() {
			instance = "8d7e33bc-95fc-4f2a-b1a3-0f7d6a2e9c41"
			a := acquire.NewAcquirer(cfg, newRunner("instance-8d7e33bc95fc4f2ab1a30f7d6a2e9c41\nother\n", "no qemu here"))

			image, err := a.Acquire(context.TODO(), instance)
			Expect(err).To(BeNil())
			Expect(image.Domain).To(Equal("instance-8d7e33bc95fc4f2ab1a30f7d6a2e9c41"))
		})

		It("matches the truncated uuid naming pattern", func() {
			instance = "8d7e33bc-95fc-4f2a-b1a3-0f7d6a2e9c41"
			a := acquire.NewAcquirer(cfg, newRunner("instance-8d7e33bc\nother\n", "no qemu here"))

			image, err := a.Acquire(context.TODO(), instance)
			Expect(err).To(BeNil())
			Expect(image.Domain).To(Equal("instance-8d7e33bc"))
		})

		It("falls back to a partial match last", func() {
			a := acquire.NewAcquirer(cfg, newRunner("prod-web-frontend-01-zone-a\n", "no qemu here"))

			image, err := a.Acquire(context.TODO(), instance)
			Expect(err).To(BeNil())
			Expect(image.Domain).To(Equal("prod-web-frontend-01-zone-a"))
		})

		It("fails with domain not found when nothing matches", func() {
			a := acquire.NewAcquirer(cfg, newRunner("unrelated-vm\n", "no qemu here"))

			_, err := a.Acquire(context.TODO(), instance)
			Expect(err).To(MatchError(acquire.ErrDomainNotFound))
		})
	})

	Context("capture", func() {
		It("records size, checksum and format", func() {
			a := acquire.NewAcquirer(cfg, newRunner(instance+"\n", ""))

			image, err := a.Acquire(context.TODO(), instance)
			Expect(err).To(BeNil())
			Expect(image.SizeBytes).To(Equal(int64(len(payload))))
			Expect(image.Format).To(Equal("raw"))

			sum := sha256.Sum256(payload)
			Expect(image.Sha256).To(Equal(hex.EncodeToString(sum[:])))

			info, err := os.Stat(image.Path)
			Expect(err).To(BeNil())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o644)))
		})

		It("detects the ELF core format", func() {
			payload = append([]byte{0x7f, 'E', 'L', 'F'}, payload...)
			a := acquire.NewAcquirer(cfg, newRunner(instance+"\n", ""))

			image, err := a.Acquire(context.TODO(), instance)
			Expect(err).To(BeNil())
			Expect(image.Format).To(Equal("elf"))
		})

		It("fails with capture failed when the dump command errors", func() {
			r := &fakeRunner{handle: func(cmd runner.Command) (runner.Result, error) {
				switch {
				case strings.HasSuffix(cmd.Path, "virsh") && cmd.Args[0] == "-q":
					return stdout(instance + "\n"), nil
				case strings.HasSuffix(cmd.Path, "ps"):
					return stdout(""), nil
				}
				return runner.Result{ExitCode: 1, Stderr: []byte("operation failed")}, nil
			}}
			a := acquire.NewAcquirer(cfg, r)

			_, err := a.Acquire(context.TODO(), instance)
			Expect(err).To(MatchError(acquire.ErrCaptureFailed))
		})
	})
})

var _ = Describe("kernel banner scan", func() {
	It("extracts the kernel version from image bytes", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "image.dump")

		var content []byte
		content = append(content, make([]byte, 8192)...)
		content = append(content, []byte("Linux version 5.15.0-91-generic (buildd@lcy02) #101-Ubuntu SMP\n")...)
		content = append(content, make([]byte, 1024)...)
		Expect(os.WriteFile(path, content, 0o644)).To(Succeed())

		banner, err := acquire.ScanKernelBanner(path)
		Expect(err).To(BeNil())
		Expect(banner.KernelVersion).To(Equal("5.15.0-91-generic"))
		Expect(banner.Raw).To(HavePrefix("Linux version 5.15.0-91-generic"))
	})

	It("reports when no banner is present", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "image.dump")
		Expect(os.WriteFile(path, make([]byte, 4096), 0o644)).To(Succeed())

		_, err := acquire.ScanKernelBanner(path)
		Expect(err).To(HaveOccurred())
	})
})
