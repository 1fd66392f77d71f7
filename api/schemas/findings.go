package schemas

// -- Collaborator Input Schemas --
//
// The scoring core does not detect vulnerabilities itself. Static analysis and
// generated-test execution are external collaborators that hand over one
// FindingsRecord per contract. Absence of a whole source, or of any record for
// a function, is a valid input.

// RawSeverity is the severity string as emitted by an external tool, before
// normalization. Tools disagree on spelling; the normalizer owns the aliasing.
type RawSeverity string

// StaticFinding is one raw static-analysis finding for a contract.
type StaticFinding struct {
	// FunctionName locates the finding. Empty means the tool could only
	// resolve it to the contract level.
	FunctionName string `json:"function_name,omitempty"`
	// Check is the detector rule id (e.g. "reentrancy-eth").
	Check    string      `json:"check"`
	Severity RawSeverity `json:"severity"`
	// Stride is the STRIDE tag the classifier assigned, or empty when the
	// finding was not classified.
	Stride StrideCategory `json:"stride,omitempty"`
}

// TestStatus is the outcome of a single generated test.
type TestStatus string

// Test outcomes reported by the test-execution collaborator.
const (
	TestPassed     TestStatus = "passed"
	TestFailed     TestStatus = "failed"
	TestIncomplete TestStatus = "incomplete"
)

// TestSuite classifies a generated test by intent.
type TestSuite string

// Generated test suites, in decreasing order of risk weight.
const (
	SuiteEoP      TestSuite = "eop"      // elevation-of-privilege probes
	SuiteNegative TestSuite = "negative" // unauthorized/invalid-input paths
	SuiteStress   TestSuite = "stress"   // load and gas-heavy paths
	SuiteHappy    TestSuite = "happy"    // expected behavior
)

// TestResult is one generated-test outcome for a function.
type TestResult struct {
	FunctionName string     `json:"function_name"`
	Name         string     `json:"name"`
	Suite        TestSuite  `json:"suite"`
	Status       TestStatus `json:"status"`
}

// StaticReport is the static-analysis portion of a findings record.
type StaticReport struct {
	Findings []StaticFinding `json:"findings"`
}

// TestReport is the test-execution portion of a findings record.
type TestReport struct {
	Results []TestResult `json:"results"`
}

// FindingsRecord is the complete collaborator input for one contract.
// A nil StaticAnalysis or Tests pointer means that source was unavailable
// (e.g. the tool was stubbed); the normalizer records it as degraded instead
// of failing.
type FindingsRecord struct {
	ContractID string `json:"contract_id"`
	// Functions is the list of function names extracted from the contract.
	// A function with no findings and no test results still scores (to zero).
	Functions      []string      `json:"functions"`
	StaticAnalysis *StaticReport `json:"static_analysis"`
	Tests          *TestReport   `json:"tests"`
}
