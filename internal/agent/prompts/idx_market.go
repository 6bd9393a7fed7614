package prompts

// ── Indonesian Market Context ──

// IDXMarketContext gives the classifier the conventions of the Indonesia
// Stock Exchange so that it reads amounts and symbols correctly.
const IDXMarketContext = `
Indonesian market context:
- Exchange: IDX (Bursa Efek Indonesia); tickers are four uppercase letters, e.g. BBCA, TLKM
- Currency: Rupiah (Rp / IDR); "triliun" = 10^12, "miliar" = 10^9, "juta" = 10^6
- Trading hours: 09:00-16:00 WIB (UTC+7), lunch break on the regular market
- Key index: IHSG (Jakarta Composite Index); LQ45 and IDX30 for blue chips
- "Tbk." marks a publicly listed company; "emiten" means issuer
- Regulators: OJK (Otoritas Jasa Keuangan) and Bank Indonesia (BI rate decisions)
`
