package difficultymanager

import (
	"math/big"
	"testing"

	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
)

// fakeTree stubs only the four BlockTreeManager methods RequiredTarget
// reads; every other method panics if called, via the nil embedded
// interface, so an accidental new dependency on the tree fails loudly.
type fakeTree struct {
	model.BlockTreeManager

	height     map[externalapi.DomainHash]uint64
	timestamp  map[externalapi.DomainHash]externalapi.DomainTimestamp
	target     map[externalapi.DomainHash]externalapi.DomainTarget
	chainBack  []*externalapi.DomainHash
}

func (f *fakeTree) Height(hash *externalapi.DomainHash) (uint64, error) {
	return f.height[*hash], nil
}

func (f *fakeTree) Block(hash *externalapi.DomainHash) (*externalapi.DomainBlock, error) {
	return &externalapi.DomainBlock{Header: &externalapi.DomainBlockHeader{Target: f.target[*hash]}}, nil
}

func (f *fakeTree) Timestamp(hash *externalapi.DomainHash) (externalapi.DomainTimestamp, error) {
	return f.timestamp[*hash], nil
}

func (f *fakeTree) ChainBack(*externalapi.DomainHash, uint64) ([]*externalapi.DomainHash, error) {
	return f.chainBack, nil
}

func TestRequiredTargetBelowAveragingWindowKeepsParentTarget(t *testing.T) {
	parent := externalapi.DomainHash{1}
	parentTarget := *externalapi.NewDomainTargetFromBig(big.NewInt(1000))
	tree := &fakeTree{
		height: map[externalapi.DomainHash]uint64{parent: 5},
		target: map[externalapi.DomainHash]externalapi.DomainTarget{parent: parentTarget},
	}
	m := New(Config{PowAveragingWindow: 100}, tree)

	got, err := m.RequiredTarget(externalapi.ChainIndex{}, &parent)
	if err != nil {
		t.Fatalf("RequiredTarget: %s", err)
	}
	if got.Cmp(&parentTarget.Int) != 0 {
		t.Errorf("target = %s, want unchanged parent target %s", &got.Int, &parentTarget.Int)
	}
}

func TestRequiredTargetClampsToWindowMax(t *testing.T) {
	parent := externalapi.DomainHash{2}
	ancestor := externalapi.DomainHash{3}
	parentTarget := *externalapi.NewDomainTargetFromBig(big.NewInt(1000))
	tree := &fakeTree{
		height:    map[externalapi.DomainHash]uint64{parent: 2},
		timestamp: map[externalapi.DomainHash]externalapi.DomainTimestamp{parent: 100000, ancestor: 0},
		target:    map[externalapi.DomainHash]externalapi.DomainTarget{parent: parentTarget},
		chainBack: []*externalapi.DomainHash{&ancestor},
	}
	cfg := Config{
		PowAveragingWindow:     2,
		ExpectedWindowTimeSpan: 100,
		WindowTimeSpanMin:      50,
		WindowTimeSpanMax:      200,
		MaxMiningTarget:        *externalapi.NewDomainTargetFromBig(big.NewInt(100000)),
	}
	m := New(cfg, tree)

	got, err := m.RequiredTarget(externalapi.ChainIndex{}, &parent)
	if err != nil {
		t.Fatalf("RequiredTarget: %s", err)
	}
	// timeSpan (100000ms) wildly exceeds expected (100ms), so the clip
	// factor saturates at windowTimeSpanMax/expected = 200/100 = 2x.
	want := big.NewInt(2000)
	if got.Cmp(want) != 0 {
		t.Errorf("target = %s, want %s", &got.Int, want)
	}
}

func TestRequiredTargetNeverExceedsMaxMiningTarget(t *testing.T) {
	parent := externalapi.DomainHash{4}
	ancestor := externalapi.DomainHash{5}
	parentTarget := *externalapi.NewDomainTargetFromBig(big.NewInt(1000))
	tree := &fakeTree{
		height:    map[externalapi.DomainHash]uint64{parent: 2},
		timestamp: map[externalapi.DomainHash]externalapi.DomainTimestamp{parent: 100000, ancestor: 0},
		target:    map[externalapi.DomainHash]externalapi.DomainTarget{parent: parentTarget},
		chainBack: []*externalapi.DomainHash{&ancestor},
	}
	cfg := Config{
		PowAveragingWindow:     2,
		ExpectedWindowTimeSpan: 100,
		WindowTimeSpanMin:      50,
		WindowTimeSpanMax:      200,
		MaxMiningTarget:        *externalapi.NewDomainTargetFromBig(big.NewInt(1500)),
	}
	m := New(cfg, tree)

	got, err := m.RequiredTarget(externalapi.ChainIndex{}, &parent)
	if err != nil {
		t.Fatalf("RequiredTarget: %s", err)
	}
	if got.Cmp(&cfg.MaxMiningTarget.Int) != 0 {
		t.Errorf("target = %s, want capped at MaxMiningTarget %s", &got.Int, &cfg.MaxMiningTarget.Int)
	}
}
