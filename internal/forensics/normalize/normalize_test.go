package normalize_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
	"github.com/virtforensics/memory-inspector/internal/forensics/normalize"
)

func TestNormalize(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Normalize Suite")
}

var _ = Describe("output normalization", func() {
	Context("parsing chain", func() {
		It("parses whole-output json", func() {
			result := normalize.Normalize("sometool", []byte(`{"matches": 3, "target": "/tmp/image"}`))
			Expect(result.Kind).To(Equal(api.ResultKindStructured))
			Expect(result.Metrics["matches"]).To(Equal(int64(3)))
			Expect(result.Fields["target"]).To(Equal("/tmp/image"))
		})

		It("extracts a json object embedded in log noise", func() {
			raw := []byte("INFO starting scan\n{\"a\":1}\nINFO done")
			result := normalize.Normalize("sometool", raw)
			Expect(result.Kind).To(Equal(api.ResultKindStructured))
			Expect(result.Metrics["a"]).To(Equal(int64(1)))
			Expect(result.Unparsed).To(ContainSubstring("starting scan"))
		})

		It("handles braces inside json strings", func() {
			raw := []byte(`noise {"msg": "got } brace", "n": 2} trailer`)
			result := normalize.Normalize("sometool", raw)
			Expect(result.Kind).To(Equal(api.ResultKindStructured))
			Expect(result.Fields["msg"]).To(Equal("got } brace"))
		})

		It("retains unparseable text rather than dropping it", func() {
			raw := []byte("completely unstructured output without anything to extract")
			result := normalize.Normalize("sometool", raw)
			Expect(result.Kind).To(Equal(api.ResultKindRaw))
			Expect(result.Unparsed).To(Equal(string(raw)))
		})
	})

	Context("tool vocabularies", func() {
		It("counts extracted strings and flags credentials", func() {
			raw := []byte("some harmless line\npassword=hunter2secret\nanother line\n")
			result := normalize.Normalize("strings", raw)
			Expect(result.Kind).To(Equal(api.ResultKindPartial))
			Expect(result.Metrics["strings_extracted"]).To(BeNumerically(">", 0))
			Expect(result.Credentials).To(HaveLen(1))
			Expect(result.Credentials[0]).ToNot(ContainSubstring("hunter2secret"))
		})

		It("builds signatures from binwalk rows", func() {
			raw := []byte("DECIMAL       HEXADECIMAL     DESCRIPTION\n" +
				"0             0x0             ELF, 64-bit LSB executable\n" +
				"1048576       0x100000        gzip compressed data\n")
			result := normalize.Normalize("binwalk", raw)
			Expect(result.Signatures).To(HaveLen(2))
			Expect(result.Signatures[1].Offset).To(Equal(int64(1048576)))
		})

		It("extracts yara rule matches as indicators", func() {
			raw := []byte("SuspiciousShell /var/lib/dumps/image.dump\n")
			result := normalize.Normalize("yara", raw)
			Expect(result.Indicators).To(ContainElement("yara rule matched: SuspiciousShell"))
		})

		It("sums carved file counts from foremost audit output", func() {
			raw := []byte("jpg:= 4\npng:= 2\n")
			result := normalize.Normalize("foremost", raw)
			Expect(result.Metrics["files_carved"]).To(Equal(int64(6)))
		})
	})
})

var _ = Describe("aggregation", func() {
	It("summarizes counts and findings across invocations", func() {
		invocations := []api.ToolInvocation{
			{
				Tool:   "strings",
				Status: api.ToolStatusCompleted,
				Result: &api.PartialResult{
					Kind:        api.ResultKindPartial,
					Metrics:     map[string]int64{"strings_extracted": 1500},
					Credentials: []string{"password=hun..."},
				},
			},
			{
				Tool:   "binwalk",
				Status: api.ToolStatusFailed,
				Error:  "exited 2",
			},
			{
				Tool:   "volatility",
				Status: api.ToolStatusSkipped,
				Error:  "symbol table unresolved",
			},
		}

		summary := normalize.Aggregate(invocations)
		Expect(summary.ToolsRequested).To(Equal(3))
		Expect(summary.ToolsSucceeded).To(Equal(1))
		Expect(summary.ToolsFailed).To(Equal(1))
		Expect(summary.ToolsSkipped).To(Equal(1))
		Expect(summary.KeyFindings).To(HaveLen(1))
		Expect(summary.CredentialsFound).To(HaveLen(1))
		Expect(summary.CredentialsFound[0]).To(ContainSubstring("(strings)"))
	})

	It("emits exactly one key finding per contributing tool", func() {
		invocations := []api.ToolInvocation{
			{
				Tool:   "foremost",
				Status: api.ToolStatusCompleted,
				Result: &api.PartialResult{
					Kind:    api.ResultKindPartial,
					Metrics: map[string]int64{"files_carved": 6, "carved_jpg": 4, "carved_png": 2},
				},
			},
			{
				Tool:   "hexdump",
				Status: api.ToolStatusCompleted,
				Result: &api.PartialResult{Kind: api.ResultKindRaw, Unparsed: "00000000  ..."},
			},
		}

		summary := normalize.Aggregate(invocations)
		Expect(summary.KeyFindings).To(HaveLen(1))
		Expect(summary.KeyFindings[0]).To(ContainSubstring("foremost"))
	})
})
