package download

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/ashare-data/internal/model"
	"github.com/rickgao/ashare-data/internal/writer"
)

// sw2021Industries is the number of SW 2021 level one industries.
const sw2021Industries = 31

// defaultSWWorkers bounds the web fetches when Deps.SWWorkers is unset.
const defaultSWWorkers = 4

// SW2021 downloads the SW 2021 level one industry datasets.
type SW2021 struct {
	job
}

// NewSW2021 creates the SW industry downloader.
func NewSW2021(d Deps) *SW2021 {
	return &SW2021{job: newJob(d, "sw2021")}
}

// Run downloads asharesw2021basic, asharesw2021member and asharesw2021daily.
func (s *SW2021) Run(ctx context.Context) error {
	return s.runSteps(ctx,
		step{"asharesw2021basic", s.basic},
		step{"asharesw2021member", s.member},
		step{"asharesw2021daily", s.daily},
	)
}

func (s *SW2021) basic(ctx context.Context) error {
	if err := s.ensure(ctx, SW2021BasicSpec); err != nil {
		return err
	}
	n, err := s.Store.Count(ctx, SW2021BasicSpec.QualifiedName())
	if err != nil {
		return err
	}
	if n == sw2021Industries {
		s.log.Info("industry list is current", "count", n)
		return nil
	}

	data, err := s.API.IndexClassify(ctx, "SW2021", "L1")
	if err != nil {
		return err
	}
	data.Rename(map[string]string{"industry_name": "name"})
	return s.Writer.Write(ctx, "sw2021 basic", SW2021BasicSpec, data, writer.ModeReplace)
}

// codes returns the stored level one industry codes.
func (s *SW2021) codes(ctx context.Context) ([]string, error) {
	if err := s.ensure(ctx, SW2021BasicSpec); err != nil {
		return nil, err
	}
	return s.Store.DistinctStrings(ctx, SW2021BasicSpec.QualifiedName(), "index_code")
}

func (s *SW2021) member(ctx context.Context) error {
	codes, err := s.codes(ctx)
	if err != nil {
		return err
	}

	parts := make([]*model.Table, 0, len(codes))
	for _, code := range codes {
		t, err := s.API.IndexMember(ctx, code)
		if err != nil {
			return fmt.Errorf("index member %s: %w", code, err)
		}
		parts = append(parts, t)
	}
	data := model.Concat(parts...)
	if data.Len() == 0 {
		s.log.Warn("no industry members", "industries", len(codes))
		return nil
	}

	data.Set("is_new", func(r model.Row) any {
		if r.Text("is_new") == "Y" {
			return 1
		}
		return 0
	})
	if err := data.SortBy("con_code", "in_date"); err != nil {
		return err
	}
	return s.save(ctx, "sw2021 member", SW2021MemberSpec, data, writer.ModeReplace)
}

func (s *SW2021) daily(ctx context.Context) error {
	dates, err := s.missingDaily(ctx, SW2021DailySpec, "")
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		return nil
	}
	codes, err := s.codes(ctx)
	if err != nil {
		return err
	}

	workers := s.SWWorkers
	if workers <= 0 {
		workers = defaultSWWorkers
	}

	var (
		mu    sync.Mutex
		parts []*model.Table
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, code := range codes {
		g.Go(func() error {
			t, err := s.Web.DailyHistory(gctx, code, dates)
			if err != nil {
				return fmt.Errorf("sw history %s: %w", code, err)
			}
			mu.Lock()
			parts = append(parts, t)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	data := model.Concat(parts...)
	if data.Len() == 0 {
		s.log.Warn("no industry bars", "dates", len(dates))
		return nil
	}
	data, err = data.DedupLast(SW2021DailySpec.Key...)
	if err != nil {
		return err
	}
	if err := data.SortBy("trade_date", "index_code"); err != nil {
		return err
	}
	return s.Writer.Write(ctx, "sw2021 daily", SW2021DailySpec, data, writer.ModeAppend)
}
