package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
)

// defaultRecordLimit caps listings that do not pass a limit.
const defaultRecordLimit = 100

func (s *Server) handleHealth(c echo.Context) error {
	names, err := s.store.ListCollections(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:  "degraded",
			Version: s.config.Version,
			Error:   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version, Collections: names})
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Identifiers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "identifiers field is required")
	}

	batch, err := s.retriever.IngestIdentifiers(c.Request().Context(), req.Identifiers)
	if err != nil {
		return err
	}

	resp := IngestResponse{
		RunID:     batch.RunID,
		Succeeded: batch.Succeeded,
		Failed:    batch.Failed,
		Results:   make([]IngestResult, len(batch.Reports)),
	}
	for i, r := range batch.Reports {
		resp.Results[i] = IngestResult{IngestReport: r, Errors: r.ErrorStrings()}
	}

	status := http.StatusOK
	if batch.Failed > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, resp)
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	snippets, err := s.retriever.AnswerQuery(c.Request().Context(), req.Query, req.K, req.MaxDistance)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, QueryResponse{Snippets: snippets})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	hits, err := s.retriever.SearchMetadata(c.Request().Context(), req.Query, req.K, req.Filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SearchResponse{Hits: hits})
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	answer, err := s.retriever.Ask(c.Request().Context(), req.Question, req.K)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, answer)
}

func (s *Server) handleSources(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	items, err := s.retriever.Sources(c.Request().Context(), c.QueryParam("filter"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SourcesResponse{Sources: items})
}

func (s *Server) handleListCollections(c echo.Context) error {
	names, err := s.store.ListCollections(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CollectionsResponse{Collections: names})
}

func (s *Server) handleDescribeCollection(c echo.Context) error {
	info, err := s.store.DescribeCollection(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleCollectionRecords(c echo.Context) error {
	ctx := c.Request().Context()
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	info, err := s.store.DescribeCollection(ctx, c.Param("name"))
	if err != nil {
		return err
	}
	records, err := s.store.GetAll(ctx, info.Name, c.QueryParam("filter"), info.Schema.ScalarFields(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RecordsResponse{Records: records})
}

func (s *Server) handleDropCollection(c echo.Context) error {
	if err := s.store.DropCollection(c.Request().Context(), c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func limitParam(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultRecordLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, ragerr.New("http.limit", ragerr.ErrInvalidArgument, "limit must be a non-negative integer, got %q", raw)
	}
	return n, nil
}
