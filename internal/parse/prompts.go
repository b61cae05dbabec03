package parse

// extractionPrompt instructs the model to emit a strict JSON array of
// transactions. The raw statement text is appended after it.
const extractionPrompt = "You are a financial data extraction engine.\n" +
	"Your task is to extract transactions from the raw bank statement text below.\n\n" +
	"Analysis rules:\n" +
	"1. The text is messy. A single transaction often spans 2-4 lines.\n" +
	"2. You must MERGE related lines to find the full context.\n" +
	"3. DATE FORMAT: look for dates like DD/MM/YYYY (e.g. 02/04/2026).\n" +
	"4. AMOUNT FORMAT: look for numbers with '-' (debit) or '+' (credit).\n" +
	"   - Example: \"-400.00\" -> amount: 400.00 (debit)\n" +
	"   - Example: \"+52000.00\" -> amount: 52000.00 (credit)\n" +
	"5. VENDOR/DESCRIPTION: the name is often on the line above or below the date.\n\n" +
	"Output format:\n" +
	"Return ONLY a JSON array of objects. No Markdown. No code fences.\n" +
	"Output must begin with \"[\" and end with \"]\".\n" +
	"[{ \"date\": \"YYYY-MM-DD\", \"description\": \"Full Description\", \"amount\": 0.00, \"vendor\": \"Name\" }]\n\n" +
	"Raw text to process:\n"
