package transcoder

import (
	"context"
	"sync"

	"tiffconv/contracts"
	"tiffconv/document"
)

type task struct {
	page *document.Page
	idx  int
}

type result struct {
	page contracts.EncodedPage
	err  error
	idx  int
}

// Pool transcodes the pages of one document on a fixed number of workers and
// delivers results in page order.
type Pool struct {
	t       *Transcoder
	workers int
}

func NewPool(t *Transcoder, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{t: t, workers: workers}
}

// Run transcodes pages at quality and calls emit for each result in index
// order. It stops at the first error from a page or from emit. Pages not
// reached are released.
func (p *Pool) Run(ctx context.Context, pages []*document.Page, quality int, emit func(contracts.EncodedPage) error) error {
	if p.workers == 1 {
		return p.runSequential(ctx, pages, quality, emit)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskChan := make(chan task)
	// bounded so at most workers encoded pages wait in the reorder buffer
	resultChan := make(chan result, p.workers)

	wg := &sync.WaitGroup{}
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go p.worker(ctx, taskChan, resultChan, quality, wg)
	}

	go func() {
		defer close(taskChan)
		for i, page := range pages {
			select {
			case taskChan <- task{page: page, idx: i}:
			case <-ctx.Done():
				release(pages[i:])
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	resultsBuffer := make(map[int]result)
	nextIndex := 0
	var firstErr error
	for res := range resultChan {
		if firstErr != nil {
			continue
		}
		resultsBuffer[res.idx] = res
		for {
			r, ok := resultsBuffer[nextIndex]
			if !ok {
				break
			}
			delete(resultsBuffer, nextIndex)
			nextIndex++
			if r.err == nil {
				r.err = emit(r.page)
			}
			if r.err != nil {
				firstErr = r.err
				cancel()
				break
			}
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if nextIndex < len(pages) {
		return ctx.Err()
	}
	return nil
}

func (p *Pool) worker(ctx context.Context, taskChan <-chan task, resultChan chan<- result, quality int, wg *sync.WaitGroup) {
	defer wg.Done()
	for tk := range taskChan {
		if ctx.Err() != nil {
			release([]*document.Page{tk.page})
			continue
		}
		enc, err := p.t.Transcode(tk.page, quality)
		select {
		case resultChan <- result{page: enc, err: err, idx: tk.idx}:
		case <-ctx.Done():
		}
	}
}

func (p *Pool) runSequential(ctx context.Context, pages []*document.Page, quality int, emit func(contracts.EncodedPage) error) error {
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			release(pages[i:])
			return err
		}
		enc, err := p.t.Transcode(page, quality)
		if err == nil {
			err = emit(enc)
		}
		if err != nil {
			release(pages[i+1:])
			return err
		}
	}
	return nil
}

func release(pages []*document.Page) {
	src := document.Source{Pages: pages}
	src.Release()
}
