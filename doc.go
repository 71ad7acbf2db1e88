/*
Package demix separates statistically independent sources from a mix of
channels in real time.

Concept

Every block of audio is a set of sample vectors, one value per channel.
The engine keeps an unmixing matrix W, which is initially identity, and a
history window of the most recent sample vectors. For every block:

    each sample vector is pushed into the history window;
    W is adapted with natural gradient over the window, a number of times;
    every output sample vector is W·x, scaled by OutputGain.

Natural gradient step for a single vector x is:

    y = W·x
    W = (1-mu)·W + mu·(I + φ(y)·yᵀ)·W

where φ is a score function selected with Density. Zero vectors are
skipped and non-finite updates are discarded, so W is always finite.

Engine is not safe for concurrent use.

Sharing

Handle shares an engine between two roles. The real-time role calls
Process and never waits: when the engine is held by the control role, the
block is passed through unchanged and counted as dropped. The control
role changes parameters and reads state, blocking only for field access.

    e, err := demix.New(3, demix.WithMu(0.01), demix.WithDensity(demix.Subgaussian))
    if err != nil {
        return err
    }
    h := demix.NewHandle(e)

    // audio callback
    err = h.Process(in, out)

    // control
    h.SetTrainingIterations(10)

Disabled engine copies input to output without learning.
*/
package demix
