package activity

// Имена стандартных процессоров. Совпадают с ProcessorName
// в конфигурации типов workflow.
const (
	NameScrapeMetadata  = "scrape_metadata"
	NameFetchSnapshot   = "fetch_snapshot"
	NameDiffSnapshots   = "diff_snapshots"
	NameSummarizePolicy = "summarize_policy"
	NameJudgeChange     = "judge_change"
)

// RegisterDefaults регистрирует стандартный набор процессоров.
func RegisterDefaults(r *Registry, scraper *Scraper, differ *Differ, llm *LLM) {
	r.Register(NameScrapeMetadata, scraper.ScrapeMetadata)
	r.Register(NameFetchSnapshot, scraper.FetchSnapshot)
	r.Register(NameDiffSnapshots, differ.DiffSnapshots)
	r.Register(NameSummarizePolicy, llm.SummarizePolicy)
	r.Register(NameJudgeChange, llm.JudgeChange)
}
