// Package difficultymanager implements the DigiShield-variant retarget
// described in §4.3: once a chain is past its averaging window, the next
// target is derived from how far the actual time span over that window
// deviated from the expected span, clipped to a quarter of the deviation
// and clamped to a configured min/max window.
package difficultymanager

import (
	"math/big"

	"github.com/flowchain/flowchain/domain/consensus/model"
	"github.com/flowchain/flowchain/domain/consensus/model/externalapi"
)

// Config carries the subset of node configuration the retarget formula
// needs.
type Config struct {
	PowAveragingWindow      uint64
	ExpectedWindowTimeSpan  externalapi.DomainDuration
	WindowTimeSpanMin       externalapi.DomainDuration
	WindowTimeSpanMax       externalapi.DomainDuration
	MaxMiningTarget         externalapi.DomainTarget
}

type difficultyManager struct {
	cfg  Config
	tree model.BlockTreeManager
}

// New constructs a DifficultyManager that reads ancestor timestamps and
// targets through tree.
func New(cfg Config, tree model.BlockTreeManager) model.DifficultyManager {
	return &difficultyManager{cfg: cfg, tree: tree}
}

// RequiredTarget computes the target a block extending parent on chain
// must satisfy. Below the averaging window, the parent's own target is
// kept unchanged, per §4.3.
func (m *difficultyManager) RequiredTarget(chain externalapi.ChainIndex, parent *externalapi.DomainHash) (externalapi.DomainTarget, error) {
	parentHeight, err := m.tree.Height(parent)
	if err != nil {
		return externalapi.DomainTarget{}, err
	}
	parentBlock, err := m.tree.Block(parent)
	if err != nil {
		return externalapi.DomainTarget{}, err
	}
	currentTarget := parentBlock.Header.Target

	w := m.cfg.PowAveragingWindow
	if parentHeight+1 < w+1 {
		return currentTarget, nil
	}

	parentTimestamp, err := m.tree.Timestamp(parent)
	if err != nil {
		return externalapi.DomainTarget{}, err
	}

	// ancestor(h, W+1): walk back w ancestors from parent.
	ancestorPath, err := m.tree.ChainBack(parent, parentHeight-w)
	if err != nil {
		return externalapi.DomainTarget{}, err
	}
	if len(ancestorPath) == 0 {
		return currentTarget, nil
	}
	ancestor := ancestorPath[0]
	ancestorTimestamp, err := m.tree.Timestamp(ancestor)
	if err != nil {
		return externalapi.DomainTarget{}, err
	}

	timeSpan := parentTimestamp.Sub(ancestorTimestamp)
	expected := m.cfg.ExpectedWindowTimeSpan

	// clipped = expected + (timeSpan - expected) / 4
	delta := int64(timeSpan-expected) / 4
	clipped := externalapi.DomainDuration(int64(expected) + delta)
	if clipped < m.cfg.WindowTimeSpanMin {
		clipped = m.cfg.WindowTimeSpanMin
	}
	if clipped > m.cfg.WindowTimeSpanMax {
		clipped = m.cfg.WindowTimeSpanMax
	}

	// newTarget = currentTarget * clipped / expected
	newTargetBig := new(big.Int).Mul(&currentTarget.Int, big.NewInt(int64(clipped)))
	if expected != 0 {
		newTargetBig.Div(newTargetBig, big.NewInt(int64(expected)))
	}
	if newTargetBig.Cmp(&m.cfg.MaxMiningTarget.Int) > 0 {
		newTargetBig.Set(&m.cfg.MaxMiningTarget.Int)
	}
	log.Debugf("retargeting chain %s: window %dms (expected %dms), target %s -> %s",
		chain, timeSpan.Milliseconds(), expected.Milliseconds(), &currentTarget.Int, newTargetBig)
	return *externalapi.NewDomainTargetFromBig(newTargetBig), nil
}
