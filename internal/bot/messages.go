package bot

import (
	"fmt"
	"html"

	"bookworms/internal/domain"
	"bookworms/internal/service"
	"bookworms/internal/streak"
)

const msgGenericError = "Xatolik yuz berdi. Keyinroq qayta urinib ko'ring."

const helpMessage = `<b>📚 Book Worms</b>

/start - Ro'yxatdan o'tish
/vazifa yoki /done - Bugungi vazifani belgilash
/stats - Statistika

<b>Adminlar uchun:</b>
/sync_users - Foydalanuvchilarni guruh bilan sinxronlash
/summary - Guruh statistikasi`

func welcomeMessage(name string) string {
	return fmt.Sprintf("Xush kelibsiz, %s! Book Worms guruhiga qo'shildingiz. Vazifalarni belgilash uchun /vazifa dan foydalaning.",
		html.EscapeString(name))
}

func completionMessage(res *domain.CompletionResult) string {
	return fmt.Sprintf(`✅ <b>Vazifa belgilandi!</b>

👤 <b>Foydalanuvchi:</b> %s
🏆 <b>Daraja:</b> %s
🔥 <b>Uzluksiz kitob o'qish davomiyligi:</b> %d kun

Tabriklaymiz! Davom eting! 📚`,
		html.EscapeString(res.User.Name), streak.Level(res.Streak), res.Streak)
}

// statsMessage renders the streak card, or the full statistics card when full is set.
func statsMessage(st *service.MemberStats, full bool) string {
	body := fmt.Sprintf(`🏆 <b>Daraja:</b> %s
🔥 <b>Uzluksiz kitob o'qish davomiyligi:</b> %d kun
📅 <b>Guruhga a'zolikning:</b> %d kuni
✅ <b>Jami o'qigan kunlar:</b> %d
❌ <b>Jami qoldirgan kunlar:</b> %d
📊 <b>Mutolaa samaradorligi:</b> %d%%`,
		st.Level, st.Stats.Streak, st.Stats.MembershipDays,
		st.Stats.Completed, st.Stats.Missed, st.Stats.Efficiency)

	name := html.EscapeString(st.User.Name)
	if full {
		return "📊 <b>Statistika</b>\n\n👤 <b>Ism familiya:</b> " + name + "\n" + body
	}
	return "👤 <b>" + name + "</b>\n\n" + body
}

func summaryMessage(st *service.Stats) string {
	return fmt.Sprintf(`<b>📊 Guruh statistikasi</b>

👥 A'zolar: %d
📋 Vazifalar: %d
✅ Bugun bajarganlar: %d
💸 Ochiq jarimalar: %d
⚠️ Qarzdorlar: %d`,
		st.TotalUsers, st.TotalTasks, st.CompletedToday, st.OpenPenalties, st.Debtors)
}
