// Package checkpoint saves and restores the parameters of a model bank as
// a gob-encoded state dict. Optimizer state is not persisted.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"aae-forge/internal/model"
)

// Tensor is the serialised form of one parameter.
type Tensor struct {
	Shape []int
	Data  []float64
}

// State is the on-disk layout: net name -> param name -> tensor.
type State struct {
	Epoch     int
	LatentDim int
	Nets      map[string]map[string]Tensor
}

// Capture copies the current parameters of bank.
func Capture(bank *model.Bank, epoch int) State {
	st := State{Epoch: epoch, LatentDim: bank.LatentDim, Nets: map[string]map[string]Tensor{}}
	for _, n := range bank.Nets() {
		params := map[string]Tensor{}
		for _, p := range n.Params() {
			params[p.Name] = Tensor{
				Shape: append([]int(nil), p.Value.Shape()...),
				Data:  append([]float64(nil), p.Value.Data().([]float64)...),
			}
		}
		st.Nets[n.Name()] = params
	}
	return st
}

// Restore copies st into bank in place. Every parameter of bank must be
// present with the same shape; nothing is copied unless all of them are.
func Restore(bank *model.Bank, st State) error {
	if st.LatentDim != bank.LatentDim {
		return errors.Errorf("checkpoint latent dim %d, model has %d", st.LatentDim, bank.LatentDim)
	}
	type pending struct {
		dst *tensor.Dense
		src []float64
	}
	var copies []pending
	for _, n := range bank.Nets() {
		params, ok := st.Nets[n.Name()]
		if !ok {
			return errors.Errorf("checkpoint has no net %q", n.Name())
		}
		for _, p := range n.Params() {
			saved, ok := params[p.Name]
			if !ok {
				return errors.Errorf("checkpoint has no param %s/%s", n.Name(), p.Name)
			}
			if !tensor.Shape(saved.Shape).Eq(p.Value.Shape()) {
				return errors.Errorf("param %s/%s: shape %v, model has %v", n.Name(), p.Name, saved.Shape, p.Value.Shape())
			}
			if len(saved.Data) != p.Value.Shape().TotalSize() {
				return errors.Errorf("param %s/%s: %d values for shape %v", n.Name(), p.Name, len(saved.Data), saved.Shape)
			}
			copies = append(copies, pending{dst: p.Value, src: saved.Data})
		}
	}
	for _, c := range copies {
		copy(c.dst.Data().([]float64), c.src)
	}
	return nil
}

// Save writes the parameters of bank to path.
func Save(path string, bank *model.Bank, epoch int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create checkpoint")
	}
	if err := gob.NewEncoder(f).Encode(Capture(bank, epoch)); err != nil {
		f.Close()
		return errors.Wrap(err, "encode checkpoint")
	}
	return f.Close()
}

// Load restores bank from path and returns the epoch it was saved at.
func Load(path string, bank *model.Bank) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open checkpoint")
	}
	defer f.Close()

	var st State
	if err := gob.NewDecoder(f).Decode(&st); err != nil {
		return 0, errors.Wrap(err, "decode checkpoint")
	}
	if err := Restore(bank, st); err != nil {
		return 0, err
	}
	return st.Epoch, nil
}

// Saver writes epoch_<k>.gob files into a directory.
type Saver struct {
	dir  string
	bank *model.Bank
}

// NewSaver creates dir if needed.
func NewSaver(dir string, bank *model.Bank) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create checkpoint dir")
	}
	return &Saver{dir: dir, bank: bank}, nil
}

// Path returns the file used for epoch.
func (s *Saver) Path(epoch int) string {
	return filepath.Join(s.dir, fmt.Sprintf("epoch_%d.gob", epoch))
}

// Save snapshots the bank for epoch.
func (s *Saver) Save(epoch int) error {
	path := s.Path(epoch)
	if err := Save(path, s.bank, epoch); err != nil {
		return err
	}
	log.Printf("checkpoint epoch=%d path=%s", epoch, path)
	return nil
}
